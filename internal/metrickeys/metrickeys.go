package metrickeys

const (
	Prefix = "wfnet."

	// Workflows
	WorkflowInstanceCreated  = Prefix + "workflow.created"
	WorkflowInstanceFinished = Prefix + "workflow.finished"

	// Tasks
	TaskEnabled  = Prefix + "task.enabled"
	TaskFinished = Prefix + "task.finished"

	// Work items
	WorkItemTransition = Prefix + "workitem.transition"

	// Scheduler
	PendingWorkEnqueued  = Prefix + "scheduler.pending.enqueued"
	PendingWorkProcessed = Prefix + "scheduler.pending.processed"
	SchedulerTick        = Prefix + "scheduler.tick"

	TransactionDuration = Prefix + "transaction.duration"
	TransactionConflict = Prefix + "transaction.conflict"

	ClientRetry = Prefix + "client.retry"

	InstanceCacheSize     = Prefix + "instance.cache.size"
	InstanceCacheEviction = Prefix + "instance.cache.eviction"
	InstanceCacheHit      = Prefix + "instance.cache.hit"
)

// Tag names
const (
	// Backend being used
	Backend = "backend"

	// Reason for evicting an entry from the instance cache
	EvictionReason = "reason"

	SubWorkflow = "subworkflow"

	State     = "state"
	Operation = "operation"
	Kind      = "kind"
)
