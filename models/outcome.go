package models

// Outcome is the per-URL result handed from a worker to the coordinator.
// Exactly one of Record and Err is set.
type Outcome struct {
	URL    string
	Record *ListingRecord
	Err    error
}

func Success(rec ListingRecord) Outcome {
	return Outcome{URL: rec.URL, Record: &rec}
}

func Failure(url string, err error) Outcome {
	return Outcome{URL: url, Err: err}
}

func (o Outcome) OK() bool { return o.Err == nil && o.Record != nil }

// Reason is the failure text, empty for successes.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
