package api

import (
	"sar-colorizer/internal/core"
	"sar-colorizer/internal/database"
	"sar-colorizer/pkg/api"
)

func convertJob(j database.Job, resolve func(string) string) api.Job {
	job := api.Job{
		Id:           j.Id,
		OriginalName: j.OriginalName,
		MimeType:     j.MimeType,
		SizeBytes:    j.SizeBytes,
		Status:       core.APIStatus(j.Status),
		Error:        j.Error,
		CreationTime: j.CreationTime,
	}
	if j.Status == database.JobCompleted {
		job.ImageUrl = resolve(core.ArtifactPath(j.Id))
	}
	if j.CompletionTime.Valid {
		t := j.CompletionTime.Time
		job.CompletionTime = &t
	}
	return job
}

func convertJobs(js []database.Job, resolve func(string) string) []api.Job {
	jobs := make([]api.Job, 0, len(js))
	for _, j := range js {
		jobs = append(jobs, convertJob(j, resolve))
	}
	return jobs
}
