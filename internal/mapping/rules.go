package mapping

import "github.com/kilupskalvis/indexsync/internal/models"

// fieldTypeRules translates declared field kinds to search field types.
// Kinds missing from the table are left for the backend to infer.
var fieldTypeRules = map[string]models.FieldMapping{
	"Boolean":         {Type: models.TypeInteger},
	"Decimal":         {Type: models.TypeDouble},
	"Double":          {Type: models.TypeDouble},
	"Enum":            {Type: models.TypeString},
	"Float":           {Type: models.TypeFloat},
	"HTMLText":        {Type: models.TypeString},
	"HTMLVarchar":     {Type: models.TypeString},
	"Int":             {Type: models.TypeInteger},
	"Date":            {Type: models.TypeDate},
	"Datetime":        {Type: models.TypeDate},
	"SS_Datetime":     {Type: models.TypeDate},
	"Text":            {Type: models.TypeString},
	"Varchar":         {Type: models.TypeString},
	"Year":            {Type: models.TypeInteger},
	"MultiValueField": {Type: models.TypeString, Array: true},
}

// defaultFields are declared on every derived mapping.
var defaultFields = map[string]models.FieldMapping{
	models.FieldLastEdited:         {Type: models.TypeDate},
	models.FieldCreated:            {Type: models.TypeDate},
	models.FieldID:                 {Type: models.TypeString},
	models.FieldParentID:           {Type: models.TypeString},
	"Sort":                         {Type: models.TypeInteger},
	"Name":                         {Type: models.TypeString},
	"MenuTitle":                    {Type: models.TypeString},
	models.FieldShowInSearch:       {Type: models.TypeInteger},
	models.FieldClassName:          {Type: models.TypeString},
	models.FieldClassNameHierarchy: {Type: models.TypeString, Array: true},
	models.FieldParentsHierarchy:   {Type: models.TypeString, Array: true},
	models.FieldStage:              {Type: models.TypeString, Array: true},
	models.FieldLastIndexed:        {Type: models.TypeDate},
}

// RuleFor returns the field mapping for a declared kind.
func RuleFor(kind models.FieldKind) (models.FieldMapping, bool) {
	fm, ok := fieldTypeRules[kind.Base()]
	return fm, ok
}
