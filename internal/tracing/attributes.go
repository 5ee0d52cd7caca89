package tracing

const (
	WorkflowInstanceID = "workflow.instance_id"

	Operation     = "wfnet.operation"
	OperationType = "wfnet.operation_type"
	ResourceType  = "wfnet.resource.type"
	ResourceID    = "wfnet.resource.id"
	ResourceName  = "wfnet.resource.name"
	Depth         = "wfnet.depth"
	Path          = "wfnet.path"
	State         = "wfnet.state"
)
