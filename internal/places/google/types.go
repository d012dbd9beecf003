package google

// Google Places API statuses the client acts on. Anything else is treated as
// a permanent failure.
const (
	statusOK             = "OK"
	statusZeroResults    = "ZERO_RESULTS"
	statusOverQueryLimit = "OVER_QUERY_LIMIT"
	statusRequestDenied  = "REQUEST_DENIED"
	statusInvalidRequest = "INVALID_REQUEST"
)

// detailsFields is the field mask requested from the details endpoint.
const detailsFields = "place_id,name,formatted_address,geometry,address_components," +
	"formatted_phone_number,website,rating,user_ratings_total,price_level,types,photos,reviews,opening_hours"

type textSearchResponse struct {
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
	Results      []searchResult `json:"results"`
}

type searchResult struct {
	PlaceID string `json:"place_id"`
	Name    string `json:"name"`
}

type detailsResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Result       detailsResult `json:"result"`
}

type detailsResult struct {
	PlaceID           string             `json:"place_id"`
	Name              string             `json:"name"`
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          geometry           `json:"geometry"`
	AddressComponents []addressComponent `json:"address_components"`
	PhoneNumber       string             `json:"formatted_phone_number"`
	Website           string             `json:"website"`
	Rating            *float64           `json:"rating"`
	UserRatingsTotal  *int               `json:"user_ratings_total"`
	PriceLevel        *int               `json:"price_level"`
	Types             []string           `json:"types"`
	Photos            []photo            `json:"photos"`
	Reviews           []review           `json:"reviews"`
}

type geometry struct {
	Location latLng `json:"location"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type photo struct {
	PhotoReference string `json:"photo_reference"`
}

type review struct {
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

// component returns the long name of the first address component carrying
// the given type, or "".
func (r detailsResult) component(kind string) string {
	for _, c := range r.AddressComponents {
		for _, t := range c.Types {
			if t == kind {
				return c.LongName
			}
		}
	}
	return ""
}
