package models

// Operation is an action an actor attempts on a collection or an item
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpUpvote Operation = "upvote"
)

// CanAccess decides whether userID may perform op on the collection itself.
// An empty userID is an anonymous actor.
func CanAccess(userID string, c *Collection, op Operation) bool {
	if c == nil {
		return false
	}

	switch op {
	case OpRead, OpUpvote:
		return c.CanView(userID)
	case OpWrite:
		return c.CanEdit(userID)
	}
	return false
}

// CanAccessItem decides whether userID may perform op on an item inside c.
// Items inherit the collection's read rule. The collection owner may write any
// item, and the creator may write their own item while the collection is
// still visible to them.
func CanAccessItem(userID string, c *Collection, item *CollectionItem, op Operation) bool {
	if c == nil || item == nil {
		return false
	}

	switch op {
	case OpRead, OpUpvote:
		return c.CanView(userID)
	case OpWrite:
		if c.CanEdit(userID) {
			return true
		}
		return userID != "" && item.UserID == userID && c.CanView(userID)
	}
	return false
}
