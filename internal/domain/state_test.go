package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestRecord_Valid(t *testing.T) {
	require.True(t, NewRecord(1, 1, strp("Item 1")).Valid())
	require.False(t, NewRecord(2, 1, strp("")).Valid())
	require.False(t, NewRecord(3, 1, nil).Valid())

	label, ok := NewRecord(3, 1, nil).Label()
	require.False(t, ok)
	require.Empty(t, label)
}

func TestRecord_ImmutableAfterConstruction(t *testing.T) {
	name := "Amy"
	r := NewRecord(1, 10, &name)
	name = "Bob"

	label, ok := r.Label()
	require.True(t, ok)
	require.Equal(t, "Amy", label)
}

func TestRecord_MarshalJSON_WireShape(t *testing.T) {
	b, err := json.Marshal([]Record{
		NewRecord(684, 1, strp("Item 684")),
		NewRecord(276, 1, nil),
	})
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":684,"listId":1,"name":"Item 684"},{"id":276,"listId":1,"name":null}]`, string(b))
}

func TestState_ZeroValueIsLoading(t *testing.T) {
	var s State
	require.Equal(t, StatusLoading, s.Status())
	require.True(t, s.Equal(Loading()))
	require.Nil(t, s.Records())
}

func TestState_SuccessCopiesRecords(t *testing.T) {
	in := []Record{NewRecord(1, 1, strp("a"))}
	s := Success(in)
	in[0] = NewRecord(2, 2, strp("b"))

	got := s.Records()
	require.Equal(t, 1, got[0].ID())

	// 修改返回的副本也不能影响 State。
	got[0] = NewRecord(3, 3, strp("c"))
	require.Equal(t, 1, s.Records()[0].ID())
}

func TestState_MarshalJSON(t *testing.T) {
	cases := []struct {
		name string
		s    State
		want string
	}{
		{"loading", Loading(), `{"status":"loading"}`},
		{"failure", Failure(), `{"status":"failure"}`},
		{"empty_success", Success(nil), `{"status":"success","records":[]}`},
		{"success", Success([]Record{NewRecord(2, 10, strp("Amy"))}), `{"status":"success","records":[{"id":2,"listId":10,"name":"Amy"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.s)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(b))
		})
	}
}

func TestState_Len(t *testing.T) {
	require.Equal(t, 0, Loading().Len())
	require.Equal(t, 0, Failure().Len())
	require.Equal(t, 0, Success(nil).Len())

	st := Success([]Record{NewRecord(1, 1, strp("a")), NewRecord(2, 1, strp("b"))})
	require.Equal(t, 2, st.Len())
	require.Equal(t, len(st.Records()), st.Len())
}
