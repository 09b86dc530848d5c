package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Dublin")
	if err != nil {
		panic(err)
	}
}

// tesco.ie renders delivery dates in Irish local time, so all date math
// and persisted timestamps are pinned to Europe/Dublin no matter where
// the process happens to run.
func Now() time.Time {
	return time.Now().In(Location)
}
