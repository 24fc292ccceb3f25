package model

// ScrapeStats accumulates the outcome of draining the invoice table.
type ScrapeStats struct {
	Pages      int `json:"pages"`
	Rows       int `json:"rows"`
	Malformed  int `json:"malformed"`
	Duplicates int `json:"skipped_duplicates"`
	Attempted  int `json:"attempted"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

// Add folds another page's counters into s.
func (s *ScrapeStats) Add(o ScrapeStats) {
	s.Pages += o.Pages
	s.Rows += o.Rows
	s.Malformed += o.Malformed
	s.Duplicates += o.Duplicates
	s.Attempted += o.Attempted
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
}

// SweepStats accumulates the outcome of one file sweep (extraction or ingestion).
type SweepStats struct {
	Seen      int `json:"seen"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Stats is the run-level counter set reported on the control channel.
// The first four fields keep the names orchestrating callers already parse.
type Stats struct {
	TotalInvoices     int `json:"total_invoices"`
	ProcessedInvoices int `json:"processed_invoices"`
	SuccessfulImports int `json:"successful_imports"`
	FailedImports     int `json:"failed_imports"`

	Pages             int `json:"pages"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	MalformedRows     int `json:"malformed_rows"`
	ArchivesExtracted int `json:"archives_extracted"`
	ArchivesSkipped   int `json:"archives_skipped"`
	ArchivesFailed    int `json:"archives_failed"`
	DocumentsIngested int `json:"documents_ingested"`
	DocumentsSkipped  int `json:"documents_skipped"`
	DocumentsFailed   int `json:"documents_failed"`
}

// MergeScrape copies the scraping counters into the run stats.
func (s *Stats) MergeScrape(sc ScrapeStats) {
	s.TotalInvoices = sc.Attempted
	s.ProcessedInvoices = sc.Succeeded + sc.Failed
	s.SuccessfulImports = sc.Succeeded
	s.FailedImports = sc.Failed
	s.Pages = sc.Pages
	s.SkippedDuplicates = sc.Duplicates
	s.MalformedRows = sc.Malformed
}

// MergeExtract copies the extraction sweep counters into the run stats.
func (s *Stats) MergeExtract(sw SweepStats) {
	s.ArchivesExtracted = sw.Succeeded
	s.ArchivesSkipped = sw.Skipped
	s.ArchivesFailed = sw.Failed
}

// MergeIngest copies the ingestion sweep counters into the run stats.
func (s *Stats) MergeIngest(sw SweepStats) {
	s.DocumentsIngested = sw.Succeeded
	s.DocumentsSkipped = sw.Skipped
	s.DocumentsFailed = sw.Failed
}
