package redis

import "fmt"

const ns = "busline:v1"

func KeyUserBookings(userID string) string {
	return fmt.Sprintf("%s:user:%s:bookings", ns, userID)
}

func KeyAllBookings() string {
	return ns + ":bookings:all"
}

// keyGeneration holds the counter bumped whenever the list cached under key
// goes stale.
func keyGeneration(key string) string {
	return key + ":gen"
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelCatalogChanged() string {
	return ns + ":catalog:changed"
}
