package util

// Volatile backends offer no native hierarchical namespace, so realm and id
// are folded into one flat key. The separator also drives prefix-based realm
// clearing on backends that can enumerate keys.

const sep = ":"

// FlatKey composes the storage key for (realm, id).
func FlatKey(realm, id string) string {
	return realm + sep + id
}

// RealmPrefix returns the prefix shared by every key of a realm.
func RealmPrefix(realm string) string {
	return realm + sep
}
