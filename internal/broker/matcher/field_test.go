package matcher

import "testing"

func TestField(t *testing.T) {
	pub, sub := pair("", "")
	args := &levelArgs{Level: "error", Count: 3, Tags: []string{"urgent", "ops"}}

	tests := []struct {
		name string
		m    Matcher
		args any
		want bool
	}{
		{"equal string", Field("Level", "error"), args, true},
		{"different string", Field("Level", "info"), args, false},
		{"number", Field("Count", "3"), args, true},
		{"array query", Field("Tags.#(==urgent)", "urgent"), args, true},
		{"array index", Field("Tags.1", "ops"), args, true},
		{"missing", Field("Missing", ""), args, false},
		{"exists", FieldExists("Tags"), args, true},
		{"not exists", FieldExists("Missing"), args, false},
		{"nil args", FieldExists("Level"), nil, false},
		{"unencodable", Field("x", "y"), func() {}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Match(pub, sub, tt.args); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
