package doc

import "strings"

// Get returns the value at a dotted path ("document.size").
// Missing intermediate objects yield ok=false.
func (obj Object) Get(path string) (Value, bool) {
	cur := obj
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := cur[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(Object)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// GetString returns the string at path, or "" when absent or not a string.
func (obj Object) GetString(path string) string {
	v, ok := obj.Get(path)
	if !ok {
		return ""
	}
	s, _ := v.(String)
	return string(s)
}

// GetBool returns the bool at path, or false when absent or not a bool.
func (obj Object) GetBool(path string) bool {
	v, ok := obj.Get(path)
	if !ok {
		return false
	}
	b, _ := v.(Bool)
	return bool(b)
}

// Project returns a copy holding only the named top-level fields.
// An empty field list returns a full copy.
func (obj Object) Project(fields []string) Object {
	if len(fields) == 0 {
		return obj.Clone()
	}
	out := make(Object, len(fields))
	for _, f := range fields {
		if v, ok := obj[f]; ok {
			out[f] = cloneValue(v)
		}
	}
	return out
}

// Set stores v at a dotted path, creating intermediate objects as needed.
// A non-object value on the way is replaced by an object.
func (obj Object) Set(path string, v Value) {
	cur := obj
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(Object)
		if !ok {
			next = Object{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// Delete removes the value at a dotted path. Missing paths are ignored.
func (obj Object) Delete(path string) {
	cur := obj
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(Object)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}
