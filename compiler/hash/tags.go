package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the hashing AST serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every cached compile keyed by a content hash.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// Node type tags.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Literals
	TagNumber byte = 0x01
	TagBool   byte = 0x02
	TagNone   byte = 0x03

	// Variable references
	TagLocalRef  byte = 0x08 // slot index within the enclosing body
	TagGlobalRef byte = 0x09

	// Expressions
	TagUnary      byte = 0x10
	TagBinary     byte = 0x11
	TagPrint      byte = 0x12
	TagConstruct  byte = 0x13
	TagMember     byte = 0x14
	TagMethodCall byte = 0x15
	TagCall       byte = 0x16

	// Statements
	TagAssign       byte = 0x20
	TagMemberAssign byte = 0x21
	TagIf           byte = 0x22
	TagReturn       byte = 0x23
	TagPass         byte = 0x24
	TagExprStmt     byte = 0x25

	// Declarations
	TagVarDef   byte = 0x30
	TagClassDef byte = 0x31
	TagMethod   byte = 0x32
	TagFuncDef  byte = 0x33
	TagProgram  byte = 0x34

	// Reserved 0xFE-0xFF
)

// Type tags, written after a declaration or parameter.
const (
	TypeTagNumber byte = 0x01
	TypeTagBool   byte = 0x02
	TypeTagNone   byte = 0x03
	TypeTagClass  byte = 0x04
)

// allTags lists every node tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagNumber, TagBool, TagNone,
	TagLocalRef, TagGlobalRef,
	TagUnary, TagBinary, TagPrint, TagConstruct, TagMember, TagMethodCall, TagCall,
	TagAssign, TagMemberAssign, TagIf, TagReturn, TagPass, TagExprStmt,
	TagVarDef, TagClassDef, TagMethod, TagFuncDef, TagProgram,
}
