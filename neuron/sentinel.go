package neuron

// Sentinel is one of the few neurons whose identity is fixed.
// Sentinels have no links of their own and are never duplicated.
type Sentinel struct {
	Node
	id   ID
	Name string
}

var (
	// Empty is what Processor.Peek returns for an empty stack.
	Empty = &Sentinel{id: EmptyID, Name: "Empty"}

	True  = &Sentinel{id: TrueID, Name: "True"}
	False = &Sentinel{id: FalseID, Name: "False"}

	// Actions is the meaning of the link from a neuron to its
	// action list.
	Actions = &Sentinel{id: ActionsID, Name: "Actions"}

	// Rules is the meaning of the link from a meaning neuron to
	// its rules cluster.
	Rules = &Sentinel{id: RulesID, Name: "Rules"}

	// Sentinels lists all of the above.
	Sentinels = []*Sentinel{Empty, True, False, Actions, Rules}
)

func (s *Sentinel) ID() ID {
	return s.id
}

func (s *Sentinel) String() string {
	return s.Name
}

// Duplicate returns the sentinel itself: there's only one True.
func (s *Sentinel) Duplicate() (Neuron, error) {
	return s, nil
}

func (s *Sentinel) CopyTo(target Neuron) error {
	return ErrNotDuplicable
}

// Bool returns True or False.
func Bool(b bool) Neuron {
	if b {
		return True
	}
	return False
}
