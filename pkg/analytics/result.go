package analytics

import "github.com/yourusername/traceboard/pkg/models"

// Kind discriminates the payload of a Result.
type Kind int

const (
	KindTimeseries Kind = iota + 1
	KindFilterOptions
	KindTopDocuments
	KindFeedback
)

func (k Kind) String() string {
	switch k {
	case KindTimeseries:
		return "timeseries"
	case KindFilterOptions:
		return "filter_options"
	case KindTopDocuments:
		return "top_documents"
	case KindFeedback:
		return "feedback"
	default:
		return "unknown"
	}
}

// Result is the output of one operation. Exactly the field matching Kind is set.
type Result struct {
	Kind          Kind
	Timeseries    *models.TimeseriesResult
	FilterOptions *models.FilterOptionsResult
	TopDocuments  *models.TopDocumentsResult
	Feedback      *models.FeedbackResult
}

func timeseriesResult(r *models.TimeseriesResult) Result {
	return Result{Kind: KindTimeseries, Timeseries: r}
}

func filterOptionsResult(r *models.FilterOptionsResult) Result {
	return Result{Kind: KindFilterOptions, FilterOptions: r}
}

func topDocumentsResult(r *models.TopDocumentsResult) Result {
	return Result{Kind: KindTopDocuments, TopDocuments: r}
}

func feedbackResult(r *models.FeedbackResult) Result {
	return Result{Kind: KindFeedback, Feedback: r}
}
