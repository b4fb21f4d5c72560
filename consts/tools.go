package consts

// Tool names exposed to the model.
const (
	ToolCalculatePositionSize = "calculate_position_size"
	ToolListMemories          = "list_memories"
	ToolSaveMemory            = "save_memory"
	ToolDeleteMemory          = "delete_memory"
	ToolListSkills            = "list_skills"
	ToolTask                  = "task"
)

// Subagents reachable through the task tool.
const (
	SubagentTechnicalAnalyst = "technical_analyst"
	SubagentRiskAnalyst      = "risk_analyst"
)

// Approval decision labels shown on the console.
const (
	NoticeCallingTool  = "Calling tool"
	NoticeAutoApproved = "Auto-approved"
	NoticeRejected     = "Rejected"
)
