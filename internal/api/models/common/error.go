package common

// Body models errors as JSON in the API
type Body struct {
	Message string `json:"message" binding:"required" example:"keys already taken"`
	// Set when a creation was rejected because some keys already exist
	ViolatingKeys []KeyRef `json:"violating_keys,omitempty"`
}

type ApiError struct {
	StatusCode int
	Body       Body
}

func (a *ApiError) Error() string {
	return a.Body.Message
}
