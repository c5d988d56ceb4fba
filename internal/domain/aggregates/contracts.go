package aggregates

// Contract names an aggregate and the tables whose writes it owns. Writes to those tables go
// through the aggregate's transactional methods; read models may query the table repos directly.
type Contract struct {
	Name        string
	OwnedTables []string
	Notes       string
}

type Aggregate interface {
	Contract() Contract
}

// Owns reports whether table is written only through this aggregate.
func (c Contract) Owns(table string) bool {
	for _, t := range c.OwnedTables {
		if t == table {
			return true
		}
	}
	return false
}
