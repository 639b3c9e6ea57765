package notify

import "snotify/pkg/channel"

// NamedChannel is one registry entry.
type NamedChannel struct {
	Name    string
	Channel channel.Channel
}

// registry is an insertion-ordered name -> channel map. It is not
// synchronized; Dispatcher guards it.
type registry struct {
	entries []NamedChannel
	index   map[string]int
}

func newRegistry() registry {
	return registry{index: map[string]int{}}
}

// put adds ch under name, or replaces the existing entry in place.
func (r *registry) put(name string, ch channel.Channel) (replaced bool) {
	if i, ok := r.index[name]; ok {
		r.entries[i] = NamedChannel{Name: name, Channel: ch}
		return true
	}
	r.index[name] = len(r.entries)
	r.entries = append(r.entries, NamedChannel{Name: name, Channel: ch})
	return false
}

func (r *registry) get(name string) (channel.Channel, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.entries[i].Channel, true
}

func (r *registry) remove(name string) bool {
	i, ok := r.index[name]
	if !ok {
		return false
	}
	entries := make([]NamedChannel, 0, len(r.entries)-1)
	entries = append(entries, r.entries[:i]...)
	entries = append(entries, r.entries[i+1:]...)
	r.entries = entries
	delete(r.index, name)
	for j := i; j < len(r.entries); j++ {
		r.index[r.entries[j].Name] = j
	}
	return true
}

func (r *registry) list() []NamedChannel {
	return append([]NamedChannel(nil), r.entries...)
}

func (r *registry) first() (NamedChannel, bool) {
	if len(r.entries) == 0 {
		return NamedChannel{}, false
	}
	return r.entries[0], true
}
