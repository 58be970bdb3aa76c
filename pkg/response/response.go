package response

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Page wraps a list payload with its pagination window.
type Page struct {
	Status     string      `json:"status"`
	StatusCode int         `json:"status_code"`
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	PageNum    int         `json:"page"`
	Limit      int         `json:"limit"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// Paginated returns a success response carrying a page of results
func Paginated(statusCode int, data interface{}, total int64, page, limit int) Page {
	return Page{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
		Total:      total,
		PageNum:    page,
		Limit:      limit,
	}
}
