package domain

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status" enum:"active,on_hold,closed"`
	CreatedAt string `json:"created_at,omitempty" format:"date-time"`
}

const (
	ProjectActive = "active"
	ProjectOnHold = "on_hold"
	ProjectClosed = "closed"
)

// WorkPackage is the unit of production scope moved through the lifecycle.
// Phase is only ever written by the transition executor.
type WorkPackage struct {
	ID                    string   `json:"id"`
	ProjectID             string   `json:"project_id"`
	Name                  string   `json:"name"`
	Phase                 Phase    `json:"phase"`
	ScopeDescription      string   `json:"scope_description,omitempty"`
	DrawingSetIDs         []string `json:"drawing_set_ids,omitempty"`
	ReleaseGroup          string   `json:"release_group,omitempty"`
	FinalInspectionPassed bool     `json:"final_inspection_passed"`
	ClientAccepted        bool     `json:"client_accepted"`
	Version               int64    `json:"version"`
	CreatedAt             string   `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt             string   `json:"updated_at,omitempty" format:"date-time"`
}

type DrawingSet struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Number    string `json:"number"`
	Title     string `json:"title,omitempty"`
	Status    string `json:"status" enum:"IFA,BFA,FFF,void"`
}

const (
	DrawingIssuedForApproval = "IFA"
	DrawingBackFromApproval  = "BFA"
	DrawingFinalForFab       = "FFF"
	DrawingVoid              = "void"
)

type RFI struct {
	ID                  string `json:"id"`
	ProjectID           string `json:"project_id"`
	WorkPackageID       string `json:"work_package_id,omitempty"`
	ReleaseGroup        string `json:"release_group,omitempty"`
	Number              string `json:"number"`
	Subject             string `json:"subject,omitempty"`
	Status              string `json:"status" enum:"open,pending_response,answered,closed"`
	FabricationBlocking bool   `json:"fabrication_blocking"`
}

const (
	RFIOpen            = "open"
	RFIPendingResponse = "pending_response"
	RFIAnswered        = "answered"
	RFIClosed          = "closed"
)

type FabricationPackage struct {
	ID            string `json:"id"`
	WorkPackageID string `json:"work_package_id"`
	Number        string `json:"number"`
	Status        string `json:"status" enum:"queued,in_progress,complete"`
}

type QCChecklist struct {
	ID            string `json:"id"`
	WorkPackageID string `json:"work_package_id"`
	Name          string `json:"name"`
	Status        string `json:"status" enum:"pending,approved,rejected"`
}

type Delivery struct {
	ID            string `json:"id"`
	WorkPackageID string `json:"work_package_id"`
	Number        string `json:"number"`
	Status        string `json:"status" enum:"scheduled,in_transit,delivered,received"`
}

// ErectionReadiness is a denormalized site/equipment snapshot for a work package.
type ErectionReadiness struct {
	ID             string `json:"id"`
	WorkPackageID  string `json:"work_package_id"`
	SiteReady      bool   `json:"site_ready"`
	EquipmentReady bool   `json:"equipment_ready"`
	Notes          string `json:"notes,omitempty"`
}

type Constraint struct {
	ID                string `json:"id"`
	ProjectID         string `json:"project_id"`
	WorkPackageID     string `json:"work_package_id"`
	Description       string `json:"description"`
	Status            string `json:"status" enum:"active,resolved"`
	ExecutionBlocking bool   `json:"execution_blocking"`
}

type FieldInstall struct {
	ID            string `json:"id"`
	WorkPackageID string `json:"work_package_id"`
	Mark          string `json:"mark"`
	Status        string `json:"status" enum:"pending,in_progress,complete"`
}

type PunchItem struct {
	ID            string `json:"id"`
	WorkPackageID string `json:"work_package_id"`
	Number        string `json:"number"`
	Description   string `json:"description,omitempty"`
	Status        string `json:"status" enum:"open,in_progress,completed"`
}

type Document struct {
	ID            string   `json:"id"`
	WorkPackageID string   `json:"work_package_id"`
	Title         string   `json:"title"`
	Tags          []string `json:"tags,omitempty"`
}

// TagCloseout marks a document as part of the closeout package.
const TagCloseout = "closeout"

// Label returns the human identifier of a record, falling back to its ID.
func label(number, id string) string {
	if number != "" {
		return number
	}
	return id
}

func (d DrawingSet) Label() string         { return label(d.Number, d.ID) }
func (r RFI) Label() string                { return label(r.Number, r.ID) }
func (f FabricationPackage) Label() string { return label(f.Number, f.ID) }
func (q QCChecklist) Label() string        { return label(q.Name, q.ID) }
func (d Delivery) Label() string           { return label(d.Number, d.ID) }
func (c Constraint) Label() string         { return c.ID }
func (f FieldInstall) Label() string       { return label(f.Mark, f.ID) }
func (p PunchItem) Label() string          { return label(p.Number, p.ID) }
