package model

// Settings holds the small set of user preferences kept alongside the
// history. Persisted overrides are merged shallowly over the defaults on
// read, so adding a preference later never invalidates stored blobs.
type Settings struct {
	ShareLocation bool   `json:"shareLocation"`
	Theme         string `json:"theme"`
	Locale        string `json:"locale"`
	Notifications bool   `json:"notifications"`
}

// DefaultSettings returns the preference defaults.
func DefaultSettings() Settings {
	return Settings{
		ShareLocation: false,
		Theme:         "light",
		Locale:        "en",
		Notifications: true,
	}
}

// Page is the envelope returned by history pagination. Pages are 1-based;
// an out-of-range page carries an empty Data slice with the true totals.
type Page struct {
	Data       []AnalysisRecord `json:"data"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalPages int              `json:"totalPages"`
}
