package driver

// Tier selects one backing store of the controller, or all of them.
type Tier uint8

const (
	// TierAll addresses every tier; removals run mem, disk, db in that order.
	TierAll Tier = iota
	TierMem
	TierDisk
	TierDB
)

func (t Tier) String() string {
	switch t {
	case TierAll:
		return "all"
	case TierMem:
		return "mem"
	case TierDisk:
		return "disk"
	case TierDB:
		return "db"
	}
	return "unknown"
}

// Binding ties an application event name to one cache entry in one tier.
// When the event fires, the entry is removed from the bound tier(s).
// One event may bind many entries; one entry may be bound to many events.
type Binding struct {
	Event string `msgpack:"e"`
	ID    string `msgpack:"i"`
	Realm string `msgpack:"r"`
	Tier  Tier   `msgpack:"t"`
}
