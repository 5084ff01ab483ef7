package matcher

import (
	"encoding/json"
	"io"

	"github.com/tidwall/gjson"
)

// Field returns a matcher accepting events whose arguments, in their JSON
// form, hold want at the gjson path. Arguments that cannot be encoded do
// not match.
//
//	matcher.Field("Level", "error")
//	matcher.Field("Tags.#(==urgent)", "urgent")
func Field(path, want string) Matcher {
	return field{path: path, want: want}
}

// FieldExists returns a matcher accepting events whose arguments have a
// value at the gjson path.
func FieldExists(path string) Matcher {
	return field{path: path, exists: true}
}

type field struct {
	path   string
	want   string
	exists bool
}

func (f field) Match(_ Publication, _ Subscription, args any) bool {
	if args == nil {
		return false
	}
	data, err := json.Marshal(args)
	if err != nil {
		return false
	}

	res := gjson.GetBytes(data, f.path)
	if !res.Exists() {
		return false
	}
	if f.exists {
		return true
	}
	return res.String() == f.want
}

func (f field) DescribeTo(w io.Writer) {
	if f.exists {
		describef(w, "field %s exists", f.path)
		return
	}
	describef(w, "field %s == %q", f.path, f.want)
}
