package domain

type City string

const (
	Mumbai    City = "Mumbai"
	Delhi     City = "Delhi"
	Bangalore City = "Bangalore"
	Chennai   City = "Chennai"
	Kolkata   City = "Kolkata"
	Hyderabad City = "Hyderabad"
	Pune      City = "Pune"
	Ahmedabad City = "Ahmedabad"
	Jaipur    City = "Jaipur"
	Goa       City = "Goa"
)

var cities = []City{
	Mumbai, Delhi, Bangalore, Chennai, Kolkata,
	Hyderabad, Pune, Ahmedabad, Jaipur, Goa,
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

var cityCoordinates = map[City]LatLng{
	Mumbai:    {Lat: 19.0760, Lng: 72.8777},
	Delhi:     {Lat: 28.7041, Lng: 77.1025},
	Bangalore: {Lat: 12.9716, Lng: 77.5946},
	Chennai:   {Lat: 13.0827, Lng: 80.2707},
	Kolkata:   {Lat: 22.5726, Lng: 88.3639},
	Hyderabad: {Lat: 17.3850, Lng: 78.4867},
	Pune:      {Lat: 18.5204, Lng: 73.8567},
	Ahmedabad: {Lat: 23.0225, Lng: 72.5714},
	Jaipur:    {Lat: 26.9124, Lng: 75.7873},
	Goa:       {Lat: 15.2993, Lng: 74.1240},
}

// Cities returns the supported cities in their canonical order.
func Cities() []City {
	out := make([]City, len(cities))
	copy(out, cities)
	return out
}

func (c City) Valid() bool {
	_, ok := cityCoordinates[c]
	return ok
}

func (c City) Coordinates() (LatLng, bool) {
	ll, ok := cityCoordinates[c]
	return ll, ok
}
