// Package catalog holds the fixed library of in-processing task templates.
// The catalog is immutable: the registry and the reverse-dependency index are
// built once at init and only read afterwards.
package catalog

import (
	"inproc/internal/domain"
)

// TemplateID is the stable identity of a task template. Values are part of
// stored checklist items and must never be renumbered.
type TemplateID int

const (
	WelcomePackage           TemplateID = 1
	IATraining               TemplateID = 2
	ObtainCACGov             TemplateID = 3
	ObtainCACCtr             TemplateID = 4
	InstallationInProcess    TemplateID = 5
	GTC                      TemplateID = 6
	DTS                      TemplateID = 7
	ATAAPS                   TemplateID = 8
	VerifyMyLearn            TemplateID = 9
	VerifyMyETMS             TemplateID = 10
	MandatoryTraining        TemplateID = 11
	PhoneSetup               TemplateID = 12
	OrientationVideos        TemplateID = 13
	Bookmarks                TemplateID = 14
	NewcomerBrief            TemplateID = 15
	SupervisorTraining       TemplateID = 16
	ConfirmMandatoryTraining TemplateID = 17
	ConfirmMyLearn           TemplateID = 18
	ConfirmMyETMS            TemplateID = 19
	UnitOrientation          TemplateID = 20
	Brief971Folder           TemplateID = 21
	SignedPerformContribPlan TemplateID = 22
	SignedTeleworkAgreement  TemplateID = 23
	TeleworkAddedToWHAT      TemplateID = 24
	SupervisorCoord2875      TemplateID = 25
	SecurityCoord2875        TemplateID = 26
	ProvisionAFNET           TemplateID = 27
	EquipmentIssue           TemplateID = 28
	AddSecurityGroups        TemplateID = 29
	BuildingAccess           TemplateID = 30
	VerifyDirectDeposit      TemplateID = 31
	VerifyTaxStatus          TemplateID = 32
	SecurityTraining         TemplateID = 33
	ConfirmSecurityTraining  TemplateID = 34
	SecurityRequirements     TemplateID = 35
	InitiateTASS             TemplateID = 36
	CoordinateTASS           TemplateID = 37
	SignedNDA                TemplateID = 38
	SCIBilletNomination      TemplateID = 39
	CoordGTCApplUpdate       TemplateID = 40
)

// Template is a catalog-defined task. Prereqs lists the template IDs that
// must be completed before an instance of this template may activate. The
// prerequisite relation must stay acyclic by construction.
type Template struct {
	ID          TemplateID
	Title       string
	Lead        domain.RoleType
	Description string
	Prereqs     []TemplateID
}

var templates = []Template{
	{
		ID:          WelcomePackage,
		Title:       "Send Welcome Package/Reference Guide",
		Lead:        domain.RoleSupervisor,
		Description: `<p><a href="https://usaf.dps.mil/sites/22539/Docs%20Shared%20to%20All/New%20Employee%20Reference%20Guide.docx">Send Welcome Package/Reference Guide</a></p>`,
	},
	{
		ID:    IATraining,
		Title: "IA Training Complete",
		Lead:  domain.RoleEmployee,
		Description: `<div><p>Information Assurance (IA) Training is an annual requirement accomplished by completing the Cyber Awareness Challenge. Supervisors should provide non-CAC new employees with the public website below so the employee may complete training prior to installation in-processing.</p>
<p>1) No CAC - <a href="https://public.cyber.mil/training/cyber-awareness-challenge/">https://public.cyber.mil/training/cyber-awareness-challenge/</a></p>
<p>2) CAC - Air Force myLearning (<a href="https://lms-jets.cce.af.mil/moodle/">https://lms-jets.cce.af.mil/moodle/</a>)</p></div>`,
	},
	{
		ID:    ObtainCACGov,
		Title: "Obtain CAC (Mil/Civ)",
		Lead:  domain.RoleEmployee,
		Description: `<div><p><b>Initial CAC for brand new employees</b><br/>
For brand new employees who have not yet obtained their CAC, see 'Installation In-processing' as that task addresses DEERS enrollment and scheduling a CAC appointment.</p>
<p><b>Replacement CAC</b><br/>Self-book an ID card appointment via <a href="https://www.wrightpattfss.com/military-personnel">https://www.wrightpattfss.com/military-personnel</a> or directly at <a href="https://88fss.setmore.com/88fss">Setmore</a> / <a href="https://idco.dmdc.os.mil/idco/">RAPIDS</a>.</p></div>`,
		Prereqs: []TemplateID{InstallationInProcess},
	},
	{
		ID:    ObtainCACCtr,
		Title: "Obtain/Transfer CAC (Ctr)",
		Lead:  domain.RoleEmployee,
		Description: `<div><p><b><u>CAC Transfer</u></b><br/>Contractors changing contracts while remaining with the same employer may transfer an existing CAC; coordinate the contract update with your security office.</p>
<p><b><u>Obtain New or Replacement CAC</u></b><br/>Self-book an ID card appointment via <a href="https://www.wrightpattfss.com/military-personnel">https://www.wrightpattfss.com/military-personnel</a> or directly at <a href="https://88fss.setmore.com/88fss">Setmore</a> / <a href="https://idco.dmdc.os.mil/idco/">RAPIDS</a>.</p></div>`,
		Prereqs: []TemplateID{CoordinateTASS},
	},
	{
		ID:          InstallationInProcess,
		Title:       "Attend Installation In-processing",
		Lead:        domain.RoleEmployee,
		Description: `<div><p>Did you attend the 88FSS installation in-processing?</p></div>`,
	},
	{
		ID:          GTC,
		Title:       "Confirm travel card action (activate/transfer) complete",
		Lead:        domain.RoleGTC,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{CoordGTCApplUpdate},
	},
	{
		ID:          DTS,
		Title:       "Profile created/re-assigned in DTS",
		Lead:        domain.RoleDTS,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{GTC},
	},
	{
		ID:          ATAAPS,
		Title:       "Create/Update ATAAPS account",
		Lead:        domain.RoleATAAPS,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:    VerifyMyLearn,
		Title: "Verify Air Force myLearning account",
		Lead:  domain.RoleEmployee,
		Description: `<div><p>All employees are to verify or register for an Air Force myLearning training account, required for mandatory training.</p>
<p><a href="https://lms-jets.cce.af.mil/moodle/">Air Force MyLearning</a></p></div>`,
		Prereqs: []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          VerifyMyETMS,
		Title:       "Verify AFMC myETMS account",
		Lead:        domain.RoleEmployee,
		Description: `<div><p>Click here for link to myETMS: <a href="https://myetms.wpafb.af.mil/myetmsasp/main.asp">Air Force Materiel Command's myEducation and Training Management System</a></p></div>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          MandatoryTraining,
		Title:       "Complete mandatory training",
		Lead:        domain.RoleEmployee,
		Description: `<p>For the list of mandatory training requirements see <a href="https://usaf.dps.mil/sites/22539/Docs%20Shared%20to%20All/Mandatory%20Training.docx">Mandatory Training.docx</a></p>`,
		Prereqs:     []TemplateID{VerifyMyETMS, VerifyMyLearn},
	},
	{
		ID:          PhoneSetup,
		Title:       "Set up phone system",
		Lead:        domain.RoleEmployee,
		Description: `<p>See the following link for phone set up instructions: <a href="https://www.tsf.wpafb.af.mil/Doc/Getting%20Started%20with%20the%20UC%20Client.pdf">Getting started with the UC Client</a></p>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          OrientationVideos,
		Title:       "View orientation videos",
		Lead:        domain.RoleEmployee,
		Description: `<p>The orientation videos may be found within <a href="https://usaf.dps.mil/sites/22539/Docs%20Shared%20to%20All/New%20Employee%20Websites.docx">New Employee Websites.docx</a></p>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          Bookmarks,
		Title:       "Bookmark key SharePoint / Website URLs",
		Lead:        domain.RoleEmployee,
		Description: `<p>Bookmark the links located in <a href="https://usaf.dps.mil/sites/22539/Docs%20Shared%20to%20All/New%20Employee%20Websites.docx">New Employee Websites.docx</a></p>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          NewcomerBrief,
		Title:       "Review directorate newcomer brief",
		Lead:        domain.RoleEmployee,
		Description: `<p>Review directorate newcomer brief located here: <a href="https://usaf.dps.mil/sites/22539/Docs%20Shared%20to%20All/AFLCMC%20-%20XP-OZ%20Overview.pptx">AFLCMC - XP-OZ Overview.pptx</a></p>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          SupervisorTraining,
		Title:       "Complete supervisor training",
		Lead:        domain.RoleEmployee,
		Description: `<div><p>Please look for Air University to provide guidance (online training link) for the completion of all appropriate supervisor training requirements.</p></div>`,
	},
	{
		ID:          ConfirmMandatoryTraining,
		Title:       "Confirm mandatory training complete",
		Lead:        domain.RoleSupervisor,
		Description: `<div><p>None</p></div>`,
		Prereqs:     []TemplateID{MandatoryTraining},
	},
	{
		ID:          ConfirmMyLearn,
		Title:       "Confirm Air Force myLearning account",
		Lead:        domain.RoleSupervisor,
		Description: `<div><p>Click here for link to Air Force myLearning account: <a href="https://lms-jets.cce.af.mil/moodle/">Air Force MyLearning</a></p></div>`,
		Prereqs:     []TemplateID{VerifyMyLearn},
	},
	{
		ID:          ConfirmMyETMS,
		Title:       "Confirm AFMC myETMS account",
		Lead:        domain.RoleSupervisor,
		Description: `<div><p>Click here for link to myETMS: <a href="https://myetms.wpafb.af.mil/myetmsasp/main.asp">Air Force Materiel Command's myEducation and Training Management System</a></p></div>`,
		Prereqs:     []TemplateID{VerifyMyETMS},
	},
	{
		ID:    UnitOrientation,
		Title: "Unit orientation conducted",
		Lead:  domain.RoleSupervisor,
		Description: `<p>Please ensure employees are briefed in the following key areas:
<ul>
<li>Explain the unit Chain of Command</li>
<li>Explain the unit mission and how it fits into the Center's mission</li>
<li>Explain the employee's role, responsibilities and expectations within the unit</li>
<li>Introductions and tour of office; introduce new employee to co-workers and key POCs</li>
<li>Discuss staff meeting schedules, unit organization activities and social opportunities</li>
<li>Obtain recall roster information</li>
<li>Discuss welcome package / reference guide</li>
</ul></p>`,
	},
	{
		ID:          Brief971Folder,
		Title:       "Create & brief 971 folder",
		Lead:        domain.RoleSupervisor,
		Description: `<p>None</p>`,
	},
	{
		ID:    SignedPerformContribPlan,
		Title: "Signed performance/contribution plan",
		Lead:  domain.RoleSupervisor,
		Description: `<p>Provide the new employee with a copy of applicable position documents (e.g., Position Description, Core Doc, Performance/Contribution Plan)</p>
<p>Reminder: Performance plans must be completed within 60 days of assignment</p>`,
		Prereqs: []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          SignedTeleworkAgreement,
		Title:       "Signed telework agreement",
		Lead:        domain.RoleSupervisor,
		Description: `<p><a href="https://usaf.dps.mil/sites/22539/Docs%20Shared%20to%20All/Telework%20Agreement%20Form%20dd2946.pdf">Telework Agreement Form DD2946</a></p>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          TeleworkAddedToWHAT,
		Title:       "Telework status entered in WHAT",
		Lead:        domain.RoleSupervisor,
		Description: `<p><a href="https://usaf.dps.mil/teams/10251/WHAT">Workforce Hybrid Analysis Tool (WHAT)</a></p>`,
		Prereqs:     []TemplateID{SignedTeleworkAgreement},
	},
	{
		ID:          SupervisorCoord2875,
		Title:       "Supervisor Coordination of 2875",
		Lead:        domain.RoleSupervisor,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          SecurityCoord2875,
		Title:       "Security Coordination of 2875",
		Lead:        domain.RoleSecurity,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{SupervisorCoord2875},
	},
	{
		ID:          ProvisionAFNET,
		Title:       "Provision/move AFNET account",
		Lead:        domain.RoleIT,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{SecurityCoord2875},
	},
	{
		ID:          EquipmentIssue,
		Title:       "Equipment Issue",
		Lead:        domain.RoleIT,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{SecurityCoord2875},
	},
	{
		ID:          AddSecurityGroups,
		Title:       "Add to security groups",
		Lead:        domain.RoleIT,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{ProvisionAFNET},
	},
	{
		ID:          BuildingAccess,
		Title:       "Obtain building access",
		Lead:        domain.RoleEmployee,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          VerifyDirectDeposit,
		Title:       "Verify direct deposit active",
		Lead:        domain.RoleATAAPS,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          VerifyTaxStatus,
		Title:       "Verify tax status accurate",
		Lead:        domain.RoleATAAPS,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:          SecurityTraining,
		Title:       "Complete security training",
		Lead:        domain.RoleEmployee,
		Description: `<p>Review the mandatory initial training slides and ensure you complete the survey at the end to receive credit</p>`,
		Prereqs:     []TemplateID{ProvisionAFNET},
	},
	{
		ID:          ConfirmSecurityTraining,
		Title:       "Confirm security training complete",
		Lead:        domain.RoleSecurity,
		Description: `<p>Confirm member has taken required initial security training by reviewing survey results</p>`,
		Prereqs:     []TemplateID{SecurityTraining},
	},
	{
		ID:    SecurityRequirements,
		Title: "Security requirements & access",
		Lead:  domain.RoleSecurity,
		Description: `<p>Review the member's Security Access Requirement (SAR) Code, Position Sensitivity Code, and Clearance Eligibility and update appropriate access level</p>
<p>Establish a servicing or owning relationship with the member in the Defense Information System for Security (DISS)</p>`,
		Prereqs: []TemplateID{ObtainCACCtr, ObtainCACGov},
	},
	{
		ID:    InitiateTASS,
		Title: "Initiate Trusted Associate Sponsorship System (TASS Form 1)",
		Lead:  domain.RoleSupervisor,
		Description: `<p>Send a TASS Form 1 to <a href="mailto:AFLCMC.Cnsldtd.Security_Office@us.af.mil">AFLCMC.Cnsldtd.Security_Office@us.af.mil</a></p>
<p>A blank TASS document is available here: <a href="https://usaf.dps.mil/sites/22539/Docs%20Shared%20to%20All/Blank%20TASS%20Form1.pdf">Blank TASS Form1.pdf</a></p>`,
	},
	{
		ID:          CoordinateTASS,
		Title:       "Coordinate Trusted Associate Sponsorship System (TASS Form 1)",
		Lead:        domain.RoleSecurity,
		Description: `<p>None</p>`,
		Prereqs:     []TemplateID{InitiateTASS},
	},
	{
		ID:    SignedNDA,
		Title: "Signed Non-Disclosure Agreement (SF312)",
		Lead:  domain.RoleEmployee,
		Description: `<p>If you are brand new to the government, or had a two-year break in service, schedule a time with your supervisor to sign an NDA (SF312). Once signed, return the SF312 to the Consolidated Security Office workflow at <a href="mailto:AFLCMC.Cnsldtd.Security_Office@us.af.mil">AFLCMC.Cnsldtd.Security_Office@us.af.mil</a></p>`,
		Prereqs: []TemplateID{ObtainCACGov},
	},
	{
		ID:    SCIBilletNomination,
		Title: "SCI Billet Nomination",
		Lead:  domain.RoleSecurity,
		Description: `<p>Verify member's Security Access Requirement (SAR) Code is a 5 and their Position Sensitivity is a 4 - Special Sensitive</p>
<p>If verified, initiate the billet nomination process and work with the respective Special Security Office to have the member indoc'd</p>`,
	},
	{
		ID:    CoordGTCApplUpdate,
		Title: "Coordinate travel card application/update",
		Lead:  domain.RoleEmployee,
		Description: `<p><b><u>Existing Government Travel Card (GTC)</u></b></p>
<p>Provide your Agency/Organization Program Coordinator (AOPC) with your travel card account number, Statement of Understanding, and GTC training certificate (each less than three years old).</p>
<p><b><u>No existing GTC - need new account</u></b></p>
<ol><li>Member completes training and Statement of Understanding (signed by member's supervisor)</li>
<li>Send training cert, SOU, and type of card desired to <a href="mailto:aflcmc.xp1@us.af.mil">aflcmc.xp1@us.af.mil</a></li>
<li>Unit AOPC initiates application; member completes it; supervisor and AOPC approve; card arrives via mail in approx. 2 weeks</li></ol>`,
		Prereqs: []TemplateID{ObtainCACGov},
	},
}

var (
	byID       map[TemplateID]Template
	dependents map[TemplateID][]TemplateID
)

func init() {
	byID = make(map[TemplateID]Template, len(templates))
	dependents = make(map[TemplateID][]TemplateID)
	for _, t := range templates {
		byID[t.ID] = t
		for _, p := range t.Prereqs {
			dependents[p] = append(dependents[p], t.ID)
		}
	}
}

// Lookup returns the template with the given id. Callers treat a miss as a
// no-op, not an error.
func Lookup(id TemplateID) (Template, bool) {
	t, ok := byID[id]
	return t, ok
}

// All returns every template in catalog order.
func All() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// WithPrerequisite returns the templates that list id among their
// prerequisites, using the reverse index built at init.
func WithPrerequisite(id TemplateID) []Template {
	ids := dependents[id]
	out := make([]Template, 0, len(ids))
	for _, d := range ids {
		out = append(out, byID[d])
	}
	return out
}
