package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the state of a harvest job.
type JobStatus string

const (
	JobInitialized JobStatus = "initialized"
	JobProcessing  JobStatus = "processing"
	JobDone        JobStatus = "done"
	JobDoneErrors  JobStatus = "done-errors"
	JobFailed      JobStatus = "failed"
)

// ItemStatus represents the state of a single harvested item.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemStarted  ItemStatus = "started"
	ItemDone     ItemStatus = "done"
	ItemSkipped  ItemStatus = "skipped"
	ItemFailed   ItemStatus = "failed"
	ItemArchived ItemStatus = "archived"
)

// ItemKind tells which canonical record an item produces.
type ItemKind string

const (
	KindDataset     ItemKind = "dataset"
	KindDataservice ItemKind = "dataservice"
)

// Keys of HarvestJob.Data.
const (
	JobDataFormat   = "format"
	JobDataGraphs   = "graphs"
	JobDataFilename = "filename"
)

// HarvestError is an error attached to a job or to an item.
type HarvestError struct {
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	Message   string    `json:"message" bson:"message"`
	Details   string    `json:"details,omitempty" bson:"details,omitempty"`
}

// HarvestLog is a log line captured while processing an item.
type HarvestLog struct {
	Level   string `json:"level" bson:"level"`
	Message string `json:"message" bson:"message"`
}

// HarvestItem is one remote entity processed during a job.
type HarvestItem struct {
	RemoteID      string         `json:"remote_id" bson:"remote_id"`
	Kind          ItemKind       `json:"kind" bson:"kind"`
	Status        ItemStatus     `json:"status" bson:"status"`
	DatasetID     *string        `json:"dataset_id,omitempty" bson:"dataset_id,omitempty"`
	DataserviceID *string        `json:"dataservice_id,omitempty" bson:"dataservice_id,omitempty"`
	Created       time.Time      `json:"created" bson:"created"`
	Started       *time.Time     `json:"started,omitempty" bson:"started,omitempty"`
	Ended         *time.Time     `json:"ended,omitempty" bson:"ended,omitempty"`
	Errors        []HarvestError `json:"errors,omitempty" bson:"errors,omitempty"`
	Logs          []HarvestLog   `json:"logs,omitempty" bson:"logs,omitempty"`
	Kwargs        map[string]any `json:"kwargs,omitempty" bson:"kwargs,omitempty"`
}

// AddError appends an item-level error.
func (i *HarvestItem) AddError(message, details string) {
	i.Errors = append(i.Errors, HarvestError{CreatedAt: time.Now().UTC(), Message: message, Details: details})
}

// HarvestJob is one execution of a source harvest.
type HarvestJob struct {
	ID       string         `json:"id,omitempty" bson:"_id"`
	SourceID string         `json:"source_id" bson:"source_id"`
	Status   JobStatus      `json:"status" bson:"status"`
	Created  time.Time      `json:"created" bson:"created"`
	Started  *time.Time     `json:"started,omitempty" bson:"started,omitempty"`
	Ended    *time.Time     `json:"ended,omitempty" bson:"ended,omitempty"`
	Errors   []HarvestError `json:"errors,omitempty" bson:"errors,omitempty"`
	Items    []*HarvestItem `json:"items,omitempty" bson:"items,omitempty"`
	Data     map[string]any `json:"data,omitempty" bson:"data,omitempty"`
}

// NewJob creates an initialized job for the given source.
func NewJob(sourceID string) *HarvestJob {
	now := time.Now().UTC()
	return &HarvestJob{
		ID:       uuid.New().String(),
		SourceID: sourceID,
		Status:   JobInitialized,
		Created:  now,
		Started:  &now,
		Data:     map[string]any{},
	}
}

// AddError appends a job-level error.
func (j *HarvestJob) AddError(message, details string) {
	j.Errors = append(j.Errors, HarvestError{CreatedAt: time.Now().UTC(), Message: message, Details: details})
}

// FindItem returns the last item with the given remote id and kind, or nil.
func (j *HarvestJob) FindItem(kind ItemKind, remoteID string) *HarvestItem {
	for i := len(j.Items) - 1; i >= 0; i-- {
		if j.Items[i].Kind == kind && j.Items[i].RemoteID == remoteID {
			return j.Items[i]
		}
	}
	return nil
}

// CountItems returns the number of items in the given status.
func (j *HarvestJob) CountItems(status ItemStatus) int {
	n := 0
	for _, item := range j.Items {
		if item.Status == status {
			n++
		}
	}
	return n
}

// HasFailedItems reports whether at least one item failed.
func (j *HarvestJob) HasFailedItems() bool {
	return j.CountItems(ItemFailed) > 0
}

// IsFinished reports whether the job reached a terminal status.
func (j *HarvestJob) IsFinished() bool {
	switch j.Status {
	case JobDone, JobDoneErrors, JobFailed:
		return true
	}
	return false
}

// Duration returns the time between start and end, or zero while running.
func (j *HarvestJob) Duration() time.Duration {
	if j.Started == nil || j.Ended == nil {
		return 0
	}
	return j.Ended.Sub(*j.Started)
}
