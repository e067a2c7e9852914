package identity

import (
	"github.com/cespare/xxhash/v2"
)

// displayName derives a deterministic, friendly name from the peer id: the
// same client keeps the same name across reconnects without the server
// storing anything.
func displayName(peerID string) string {
	h := xxhash.Sum64String(peerID)
	adjective := adjectives[h%uint64(len(adjectives))]
	animal := animals[(h/uint64(len(adjectives)))%uint64(len(animals))]
	return adjective + " " + animal
}

var adjectives = []string{
	"Amber", "Azure", "Bold", "Brave", "Bright", "Calm", "Clever", "Coral",
	"Crimson", "Curious", "Eager", "Emerald", "Gentle", "Golden", "Happy",
	"Indigo", "Ivory", "Jade", "Jolly", "Lively", "Lucky", "Mellow", "Misty",
	"Noble", "Olive", "Opal", "Plucky", "Proud", "Quick", "Quiet", "Ruby",
	"Sandy", "Scarlet", "Silent", "Silver", "Sleek", "Sunny", "Swift",
	"Teal", "Tidy", "Violet", "Vivid", "Wise", "Witty", "Zesty",
}

var animals = []string{
	"Albatross", "Badger", "Beaver", "Bison", "Bobcat", "Cheetah", "Condor",
	"Coyote", "Crane", "Dolphin", "Falcon", "Ferret", "Finch", "Fox",
	"Gazelle", "Gecko", "Heron", "Hedgehog", "Ibex", "Jackal", "Kestrel",
	"Kitten", "Koala", "Lemur", "Lynx", "Magpie", "Marmot", "Mole",
	"Narwhal", "Ocelot", "Osprey", "Otter", "Owl", "Panda", "Pelican",
	"Penguin", "Puffin", "Quail", "Rabbit", "Raccoon", "Raven", "Seal",
	"Sparrow", "Squirrel", "Stoat", "Swift", "Tapir", "Toucan", "Walrus",
	"Weasel", "Wombat", "Wren",
}
