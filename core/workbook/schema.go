package workbook

// Sheet names and desired schemas carried over from the workbook layout the
// department already uses. The store backfills these on load so the rest of
// the application can assume the columns exist.

const (
	PrimaryKey = "IncidentNumber"

	SheetIncidents = "Incidents"
	SheetTimes     = "Incident_Times"
	SheetPersonnel = "Incident_Personnel"
	SheetApparatus = "Incident_Apparatus"
	SheetActions   = "Incident_Actions"

	SheetRosterPersonnel = "Personnel"
	SheetRosterApparatus = "Apparatus"
)

// ChildSheets lists every sheet holding rows foreign-keyed to an incident.
var ChildSheets = []string{SheetTimes, SheetPersonnel, SheetApparatus, SheetActions}

var ChildSchemas = map[string][]string{
	SheetTimes:     {PrimaryKey, "Alarm", "Enroute", "Arrival", "Clear"},
	SheetPersonnel: {PrimaryKey, "PersonnelID", "Name", "Role", "Hours", "RespondedIn", "Notes"},
	SheetApparatus: {PrimaryKey, "ApparatusID", "Unit", "UnitType", "Role", "Actions", "Notes"},
	SheetActions:   {PrimaryKey, "Action", "Notes"},
}

// Workflow columns on the Incidents sheet.
const (
	ColStatus           = "Status"
	ColCreatedBy        = "CreatedBy"
	ColSubmittedAt      = "SubmittedAt"
	ColReviewedBy       = "ReviewedBy"
	ColReviewedAt       = "ReviewedAt"
	ColReviewerComments = "ReviewerComments"
	ColArchiveStatus    = "ArchiveStatus"
)

var IncidentWorkflowColumns = []string{
	ColStatus, ColCreatedBy, ColSubmittedAt, ColReviewedBy, ColReviewedAt, ColReviewerComments, ColArchiveStatus,
}

var PersonnelSchema = []string{
	"PersonnelID", "Name", "UnitNumber", "Rank", "Badge", "Phone", "Email",
	"Address", "City", "State", "PostalCode", "Certifications", "Active",
}

var ApparatusSchema = []string{
	"ApparatusID", "UnitNumber", "CallSign", "UnitType", "GPM", "TankSize",
	"SeatingCapacity", "Station", "Active",
}

// LookupSheets maps each List_* sheet to the form field its first column
// feeds. Lookup sheets are externally edited; the store reads them as-is.
var LookupSheets = map[string]string{
	"List_IncidentType":     "IncidentType",
	"List_AlarmLevel":       "AlarmLevel",
	"List_ResponsePriority": "ResponsePriority",
	"List_PersonnelRoles":   "Role",
	"List_UnitTypes":        "UnitType",
	"List_Actions":          "Action",
	"List_States":           "State",
}
