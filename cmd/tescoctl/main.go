package main

import (
	"context"

	"tescoassist-backend/cmd/tescoctl/commands"
	"tescoassist-backend/lib/telemetry"
)

func main() {
	ctx := context.Background()
	telemetry.SetupFromEnv(ctx, "tescoctl")
	telemetry.InitSlog(true)
	commands.ExecuteContext(ctx)
}
