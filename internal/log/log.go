package log

const (
	NamespaceKey = "wfnet"

	InstanceIDKey       = NamespaceKey + ".instance.id"
	ParentInstanceIDKey = NamespaceKey + ".instance.parent_id"
	AggregateKeyKey     = NamespaceKey + ".instance.aggregate_key"
	WorkflowNameKey     = NamespaceKey + ".workflow.name"
	WorkflowVersionKey  = NamespaceKey + ".workflow.version"
	WorkflowStateKey    = NamespaceKey + ".workflow.state"

	TaskNameKey       = NamespaceKey + ".task.name"
	TaskGenerationKey = NamespaceKey + ".task.generation"
	TaskStateKey      = NamespaceKey + ".task.state"

	ConditionNameKey = NamespaceKey + ".condition.name"
	MarkingKey       = NamespaceKey + ".condition.marking"

	WorkItemIDKey    = NamespaceKey + ".workitem.id"
	WorkItemStateKey = NamespaceKey + ".workitem.state"

	PendingWorkIDKey   = NamespaceKey + ".pending.id"
	PendingWorkKindKey = NamespaceKey + ".pending.kind"

	TraceIDKey   = NamespaceKey + ".trace.id"
	SpanIDKey    = NamespaceKey + ".span.id"
	OperationKey = NamespaceKey + ".operation"

	ProcessedKey = NamespaceKey + ".tick.processed"
	SettledKey   = NamespaceKey + ".tick.settled"
	AttemptKey   = NamespaceKey + ".attempt"
	DurationKey  = NamespaceKey + ".duration_ms"
)
