package testutil

import (
	"fmt"
	"math/rand"
)

// RandomString generates a random lowercase string given the pseudo
// random source.
func RandomString(rndm *rand.Rand, length int) string {
	str := make([]rune, length)
	for i := 0; i < length; i++ {
		str[i] = 'a' + rune(rndm.Intn(26))
	}
	return string(str)
}

// RandomProductID generates an id shaped like the data-product-id
// attributes tesco.ie puts on product tiles.
func RandomProductID(rndm *rand.Rand) string {
	return fmt.Sprintf("%09d", rndm.Intn(1_000_000_000))
}
