package hash

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of the frozen hashing AST.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (int32=4B, uint16=2B)
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Lists: uint32 big-endian count, then the elements inline
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of an HNode tree.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(node HNode) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeUint16(v uint16) {
	s.buf = binary.BigEndian.AppendUint16(s.buf, v)
}

func (s *serializer) writeUint32(v uint32) {
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeType(t HType) {
	s.writeByte(t.Tag)
	if t.Tag == TypeTagClass {
		s.writeString(t.Name)
	}
}

func (s *serializer) writeNodes(nodes []HNode) {
	s.writeUint32(uint32(len(nodes)))
	for _, n := range nodes {
		s.serializeNode(n)
	}
}

func (s *serializer) writeVarDefs(defs []*HVarDef) {
	s.writeUint32(uint32(len(defs)))
	for _, d := range defs {
		s.serializeNode(d)
	}
}

func (s *serializer) writeMethod(tag byte, m *HMethod) {
	s.writeByte(tag)
	s.writeString(m.Name)
	s.writeUint32(uint32(len(m.Params)))
	for _, p := range m.Params {
		s.writeType(p)
	}
	s.writeType(m.Return)
	s.writeVarDefs(m.Locals)
	s.writeNodes(m.Stmts)
}

func (s *serializer) serializeNode(node HNode) {
	switch n := node.(type) {
	case *HNumber:
		s.writeByte(TagNumber)
		s.writeUint32(uint32(n.Value))

	case *HBool:
		s.writeByte(TagBool)
		s.writeBool(n.Value)

	case *HNone:
		s.writeByte(TagNone)

	case *HLocalRef:
		s.writeByte(TagLocalRef)
		s.writeUint16(n.Slot)

	case *HGlobalRef:
		s.writeByte(TagGlobalRef)
		s.writeString(n.Name)

	case *HUnary:
		s.writeByte(TagUnary)
		s.writeString(n.Op)
		s.serializeNode(n.Operand)

	case *HBinary:
		s.writeByte(TagBinary)
		s.writeString(n.Op)
		s.serializeNode(n.Left)
		s.serializeNode(n.Right)

	case *HPrint:
		s.writeByte(TagPrint)
		s.serializeNode(n.Arg)

	case *HConstruct:
		s.writeByte(TagConstruct)
		s.writeString(n.Class)

	case *HMember:
		s.writeByte(TagMember)
		s.serializeNode(n.Object)
		s.writeString(n.Field)

	case *HMethodCall:
		s.writeByte(TagMethodCall)
		s.serializeNode(n.Object)
		s.writeString(n.Method)
		s.writeNodes(n.Args)

	case *HCall:
		s.writeByte(TagCall)
		s.writeString(n.Func)
		s.writeNodes(n.Args)

	case *HAssign:
		s.writeByte(TagAssign)
		s.serializeNode(n.Target)
		s.serializeNode(n.Value)

	case *HMemberAssign:
		s.writeByte(TagMemberAssign)
		s.serializeNode(n.Object)
		s.writeString(n.Field)
		s.serializeNode(n.Value)

	case *HIf:
		s.writeByte(TagIf)
		s.serializeNode(n.Cond)
		s.writeNodes(n.Then)
		s.writeNodes(n.Else)

	case *HReturn:
		s.writeByte(TagReturn)
		s.writeBool(n.Value != nil)
		if n.Value != nil {
			s.serializeNode(n.Value)
		}

	case *HPass:
		s.writeByte(TagPass)

	case *HExprStmt:
		s.writeByte(TagExprStmt)
		s.serializeNode(n.Expr)

	case *HVarDef:
		s.writeByte(TagVarDef)
		s.writeString(n.Name)
		s.writeType(n.Type)
		s.serializeNode(n.Init)

	case *HMethod:
		s.writeMethod(TagMethod, n)

	case *HFuncDef:
		s.writeMethod(TagFuncDef, n.HMethod)

	case *HClassDef:
		s.writeByte(TagClassDef)
		s.writeString(n.Name)
		s.writeVarDefs(n.Fields)
		s.writeUint32(uint32(len(n.Methods)))
		for _, m := range n.Methods {
			s.serializeNode(m)
		}

	case *HProgram:
		s.writeByte(TagProgram)
		s.writeNodes(n.Decls)
		s.writeNodes(n.Stmts)
	}
}
