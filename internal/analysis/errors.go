package analysis

import "fmt"

// ArticleAnalysisError reports that an article could not be analyzed. The consumer
// routes the originating record to the analysis DLQ.
type ArticleAnalysisError struct {
	ArticleID string
	Err       error
}

func (e *ArticleAnalysisError) Error() string {
	return fmt.Sprintf("analyze article %s: %v", e.ArticleID, e.Err)
}

func (e *ArticleAnalysisError) Unwrap() error {
	return e.Err
}
