package chain

import "prizmagent/internal/domain"

// composite is implemented by executables built from other executables.
type composite interface {
	Members() []domain.Executable
}

// checkAcyclic rejects self-referential composition: a chain that directly or
// transitively contains itself would recurse forever at run time, so it is
// refused at construction/registration with a CyclicChain failure.
func checkAcyclic(root domain.Executable) error {
	return walk(root, map[domain.Executable]bool{})
}

func walk(node domain.Executable, path map[domain.Executable]bool) error {
	if path[node] {
		return domain.Failf(domain.CyclicChain, "chain %s contains itself", node.Name())
	}
	c, ok := node.(composite)
	if !ok {
		return nil
	}
	path[node] = true
	for _, m := range c.Members() {
		if err := walk(m, path); err != nil {
			return err
		}
	}
	delete(path, node)
	return nil
}
