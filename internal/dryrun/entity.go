package dryrun

import "fmt"

// EntityType is the closed set of domain entity types the router knows how
// to virtualize. The zero value is not a valid entity type.
type EntityType int

const (
	EntityUnknown EntityType = iota
	BlockCache
	BlockState
	VcDocument
	VpDocument
	DidDocument
	Schema
	DocumentState
	Policy
	AggregateVC
	ApprovalDocument
	Token
	Topic
	DryRun
	PolicyRoles
	PolicyInvitations
	MultiDocuments
	SplitDocuments
	Tag
	TagCache
	ExternalDocument
	PolicyCategory
	PolicyProperty
	MintRequest
	MintTransaction

	// Entity types that only exist inside a dry run.
	VirtualUser
	VirtualKey
	VirtualMessage
	VirtualFile
	VirtualTransaction
	VirtualAccount

	entityTypeEnd
)

// Virtual record tags.
const (
	TagVirtualUsers      = "VirtualUsers"
	TagVirtualKey        = "VirtualKey"
	TagMessage           = "Message"
	TagFiles             = "Files"
	TagTransactions      = "Transactions"
	TagHederaAccountInfo = "HederaAccountInfo"
)

var entityNames = [...]string{
	EntityUnknown:      "Unknown",
	BlockCache:         "BlockCache",
	BlockState:         "BlockState",
	VcDocument:         "VcDocument",
	VpDocument:         "VpDocument",
	DidDocument:        "DidDocument",
	Schema:             "Schema",
	DocumentState:      "DocumentState",
	Policy:             "Policy",
	AggregateVC:        "AggregateVC",
	ApprovalDocument:   "ApprovalDocument",
	Token:              "Token",
	Topic:              "Topic",
	DryRun:             "DryRun",
	PolicyRoles:        "PolicyRoles",
	PolicyInvitations:  "PolicyInvitations",
	MultiDocuments:     "MultiDocuments",
	SplitDocuments:     "SplitDocuments",
	Tag:                "Tag",
	TagCache:           "TagCache",
	ExternalDocument:   "ExternalDocument",
	PolicyCategory:     "PolicyCategory",
	PolicyProperty:     "PolicyProperty",
	MintRequest:        "MintRequest",
	MintTransaction:    "MintTransaction",
	VirtualUser:        "VirtualUser",
	VirtualKey:         "VirtualKey",
	VirtualMessage:     "VirtualMessage",
	VirtualFile:        "VirtualFile",
	VirtualTransaction: "VirtualTransaction",
	VirtualAccount:     "VirtualAccount",
}

func (e EntityType) String() string {
	if e < 0 || e >= entityTypeEnd {
		return fmt.Sprintf("EntityType(%d)", int(e))
	}
	return entityNames[e]
}

// Valid reports whether e is a registered entity type.
func (e EntityType) Valid() bool {
	return e > EntityUnknown && e < entityTypeEnd
}

// TagFor returns the virtual-record tag of an entity type. Unregistered
// types fail with a CONFIGURATION_ERROR.
func TagFor(e EntityType) (string, error) {
	switch e {
	case BlockCache:
		return "BlockCache", nil
	case BlockState:
		return "BlockState", nil
	case VcDocument:
		return "VcDocumentCollection", nil
	case VpDocument:
		return "VpDocumentCollection", nil
	case DidDocument:
		return "DidDocumentCollection", nil
	case Schema:
		return "SchemaCollection", nil
	case DocumentState:
		return "DocumentState", nil
	case Policy:
		return "Policy", nil
	case AggregateVC:
		return "AggregateVC", nil
	case ApprovalDocument:
		return "ApprovalDocumentCollection", nil
	case Token:
		return "TokenCollection", nil
	case Topic:
		return "TopicCollection", nil
	case DryRun:
		return "DryRun", nil
	case PolicyRoles:
		return "PolicyRolesCollection", nil
	case PolicyInvitations:
		return "PolicyInvitations", nil
	case MultiDocuments:
		return "MultiDocuments", nil
	case SplitDocuments:
		return "SplitDocuments", nil
	case Tag:
		return "Tag", nil
	case TagCache:
		return "TagCache", nil
	case ExternalDocument:
		return "ExternalDocument", nil
	case PolicyCategory:
		return "PolicyCategories", nil
	case PolicyProperty:
		return "PolicyProperties", nil
	case MintRequest:
		return "MintRequest", nil
	case MintTransaction:
		return "MintTransaction", nil
	case VirtualUser:
		return TagVirtualUsers, nil
	case VirtualKey:
		return TagVirtualKey, nil
	case VirtualMessage:
		return TagMessage, nil
	case VirtualFile:
		return TagFiles, nil
	case VirtualTransaction:
		return TagTransactions, nil
	case VirtualAccount:
		return TagHederaAccountInfo, nil
	default:
		return "", &Error{
			Code:    CodeConfiguration,
			Message: fmt.Sprintf("entity type %s has no registered tag", e),
		}
	}
}

// MustTagFor is TagFor for entity types known at compile time.
// Panics on unregistered types.
func MustTagFor(e EntityType) string {
	tag, err := TagFor(e)
	if err != nil {
		panic(err)
	}
	return tag
}

// EntityTypes returns every registered entity type in declaration order.
func EntityTypes() []EntityType {
	out := make([]EntityType, 0, int(entityTypeEnd)-1)
	for e := EntityUnknown + 1; e < entityTypeEnd; e++ {
		out = append(out, e)
	}
	return out
}

// ParseEntityType resolves an entity type by name or by tag.
func ParseEntityType(s string) (EntityType, error) {
	for _, e := range EntityTypes() {
		if e.String() == s || MustTagFor(e) == s {
			return e, nil
		}
	}
	return EntityUnknown, &Error{
		Code:    CodeConfiguration,
		Message: fmt.Sprintf("unknown entity type %q", s),
	}
}
