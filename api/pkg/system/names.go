package system

import (
	"math/rand"
	"strconv"
)

var adjectives = []string{
	"golden",
	"crusty",
	"flaky",
	"buttery",
	"warm",
	"toasty",
	"crumbly",
	"glazed",
	"rustic",
	"airy",
	"chewy",
	"tender",
}

var nouns = []string{
	"crumb",
	"crust",
	"loaf",
	"proof",
	"batch",
	"bake",
	"oven",
	"rack",
	"dough",
	"rise",
}

func GenerateAmusingName() string {
	adj := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	number := rand.Intn(900) + 100 // generates a random 3 digit number
	return adj + "-" + noun + "-" + strconv.Itoa(number)
}
