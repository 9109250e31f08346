package description

// Kind represents the role a server reports.
type Kind uint32

// Kind constants.
const (
	Unknown     Kind = 0
	Standalone  Kind = 1
	RSMember    Kind = 2
	RSPrimary   Kind = 4 + RSMember
	RSSecondary Kind = 8 + RSMember
	RSArbiter   Kind = 16 + RSMember
	RSGhost     Kind = 32 + RSMember
	Hidden      Kind = 64 + RSMember
	Mongos      Kind = 256
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case Standalone:
		return "Standalone"
	case RSMember:
		return "RSOther"
	case RSPrimary:
		return "RSPrimary"
	case RSSecondary:
		return "RSSecondary"
	case RSArbiter:
		return "RSArbiter"
	case RSGhost:
		return "RSGhost"
	case Hidden:
		return "Hidden"
	case Mongos:
		return "Mongos"
	}

	return "Unknown"
}

// TopologyKind represents the shape of the deployment.
type TopologyKind uint32

// TopologyKind constants.
const (
	TopologyKindUnknown   TopologyKind = 0
	Single                TopologyKind = 1
	ReplicaSet            TopologyKind = 2
	ReplicaSetNoPrimary   TopologyKind = 4 + ReplicaSet
	ReplicaSetWithPrimary TopologyKind = 8 + ReplicaSet
	Sharded               TopologyKind = 256
)

// String implements the fmt.Stringer interface.
func (k TopologyKind) String() string {
	switch k {
	case Single:
		return "Single"
	case ReplicaSet:
		return "ReplicaSet"
	case ReplicaSetNoPrimary:
		return "ReplicaSetNoPrimary"
	case ReplicaSetWithPrimary:
		return "ReplicaSetWithPrimary"
	case Sharded:
		return "Sharded"
	}

	return "Unknown"
}
