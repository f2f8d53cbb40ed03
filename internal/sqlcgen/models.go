package sqlcgen

type Class struct {
	Name       string
	Superclass *string
}

type ObjectRow struct {
	Class      string
	ID         string
	Attributes map[string]string
}

type RelatedObject struct {
	RelName string
	ObjectRow
}
