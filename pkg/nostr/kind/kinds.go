package kind

// T is the event type in the nostr protocol, the use of the capital T
// signifying type, consistent with Go idiom, the Go standard library, and
// much, conformant, existing code.
type T uint16

func (ki T) ToInt() int       { return int(ki) }
func (ki T) ToUint16() uint16 { return uint16(ki) }

// The event kinds are put in a separate package so they will be referred to
// as `kind.EventType` rather than `nostr.KindEventType` as this is correct Go
// idiom, and creating a special type for them makes the set implicit and
// enforced by the compiler at compile time.
const (
	// ProfileMetadata is an event type that stores user profile data, pet
	// names, bio, lightning address, etc.
	ProfileMetadata T = 0
	// SetMetadata is a synonym for ProfileMetadata.
	SetMetadata T = 0
	// TextNote is a standard short text note of plain text a la twitter
	TextNote T = 1
	// EncryptedDirectMessage is an ECDH/AES-256-CBC encrypted message
	// addressed to the pubkey in the p tag.
	EncryptedDirectMessage T = 4
	// Deletion requests removal of the events referenced by its e tags.
	Deletion      T = 5
	EventDeletion T = 5
	// ReplaceableStart marks the beginning of the replaceable event range.
	ReplaceableStart T = 10000
	// ReplaceableEnd marks the end of the replaceable event range.
	ReplaceableEnd T = 20000
	// EphemeralStart marks the beginning of the ephemeral event range.
	EphemeralStart T = 20000
	// EphemeralEnd marks the end of the ephemeral event range.
	EphemeralEnd T = 30000
	// ParameterizedReplaceableStart marks the beginning of the range of
	// events replaceable per d tag value.
	ParameterizedReplaceableStart T = 30000
	// StallDefinition creates or updates a marketplace stall.
	StallDefinition T = 30017
	// ProductDefinition creates or updates a product within a stall.
	ProductDefinition T = 30018
	// MarketplaceUIUX carries merchant marketplace layout information.
	MarketplaceUIUX T = 30019
	// ApplicationSpecificData is arbitrary application state keyed by d tag;
	// delegation grants are published under this kind.
	ApplicationSpecificData T = 30078
	// ParameterizedReplaceableEnd marks the end of the range of events
	// replaceable per d tag value.
	ParameterizedReplaceableEnd T = 40000
)

var Map = map[T]string{
	ProfileMetadata:         "ProfileMetadata",
	TextNote:                "TextNote",
	EncryptedDirectMessage:  "EncryptedDirectMessage",
	EventDeletion:           "EventDeletion",
	StallDefinition:         "StallDefinition",
	ProductDefinition:       "ProductDefinition",
	MarketplaceUIUX:         "MarketplaceUIUX",
	ApplicationSpecificData: "ApplicationSpecificData",
}

func (ki T) IsReplaceable() bool {
	return ki == ProfileMetadata ||
		(ki >= ReplaceableStart && ki < ReplaceableEnd)
}

func (ki T) IsEphemeral() bool {
	return ki >= EphemeralStart && ki < EphemeralEnd
}

func (ki T) IsParameterizedReplaceable() bool {
	return ki >= ParameterizedReplaceableStart &&
		ki < ParameterizedReplaceableEnd
}
