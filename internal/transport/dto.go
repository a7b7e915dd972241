package transport

type RegisterRequest struct {
	Name     string `json:"name"     validate:"required,max=100"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// CreateIncidentRequest binds from JSON or from multipart form fields.
type CreateIncidentRequest struct {
	Title       string `json:"title"       form:"title"       validate:"required,max=200"`
	Description string `json:"description" form:"description" validate:"required"`
	Category    string `json:"category"    form:"category"    validate:"required"`
	Priority    string `json:"priority"    form:"priority"    validate:"required"`
	Date        string `json:"date"        form:"date"`
}

type UpdateIncidentRequest struct {
	Title       *string `json:"title,omitempty"       validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,min=1"`
	Category    *string `json:"category,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
	// AssignedTo set to "" clears the assignee.
	AssignedTo *string `json:"assignedTo,omitempty"`
	Date       *string `json:"date,omitempty"`
}

type ListIncidentsQuery struct {
	Status     string `query:"status"`
	Category   string `query:"category"`
	Priority   string `query:"priority"`
	SortBy     string `query:"sortBy"`
	ReportedBy string `query:"reportedBy"`
	AssignedTo string `query:"assignedTo"`
}

type BulkUpdateRequest struct {
	IDs    []string `json:"ids"    validate:"required,min=1,max=500"`
	Status string   `json:"status" validate:"required"`
}

type UpdateUserRequest struct {
	Name      *string `json:"name,omitempty"      validate:"omitempty,min=1,max=100"`
	Role      *string `json:"role,omitempty"`
	IsBlocked *bool   `json:"isBlocked,omitempty"`
}

type AuditQuery struct {
	TargetType string `query:"targetType"`
	Action     string `query:"action"`
	StartDate  string `query:"startDate"`
	EndDate    string `query:"endDate"`
}
