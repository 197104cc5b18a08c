package dto

type SubmitJobRequest struct {
	PaperRef string `json:"paper_ref" binding:"required"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	PaperRef string `form:"paper_ref"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobResponse `json:"jobs"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type JobErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type JobResponse struct {
	JobID     string       `json:"job_id"`
	PaperRef  string       `json:"paper_ref"`
	Status    string       `json:"status"`
	Progress  int          `json:"progress"`
	ResultURL string       `json:"result_url,omitempty"`
	Error     *JobErrorDTO `json:"error,omitempty"`
	CreatedAt string       `json:"created_at"`
	UpdatedAt string       `json:"updated_at"`
}

type StatsResponse struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}
