package model

import "time"

// QualificationVerdict is the parsed result of the product-fit check.
type QualificationVerdict struct {
	Matched    bool     `json:"matched"`
	Categories []string `json:"categories"`
	Segments   []string `json:"segments"`
	Reasoning  string   `json:"reasoning"`
	Evidence   string   `json:"evidence"`
}

// Stats summarizes a qualification run.
type Stats struct {
	QualifiedPersons    int           `json:"qualified_persons_count"`
	QualifiedCompanies  int           `json:"qualified_companies_count"`
	CompaniesProcessed  int           `json:"total_companies_processed"`
	CompaniesSkipped    int           `json:"companies_skipped"`
	CachedPersons       int           `json:"cached_persons_count"`
	PagesProcessed      int           `json:"pages_processed"`
	TargetReached       bool          `json:"target_reached"`
	KillSwitchActivated bool          `json:"kill_switch_activated"`
	Duration            time.Duration `json:"duration_ns"`
}

// RunResult is everything a qualification run produces.
type RunResult struct {
	Request   SearchRequest `json:"request"`
	Leads     []Lead        `json:"leads"`
	Companies []Company     `json:"companies"`
	Stats     Stats         `json:"stats"`
}
