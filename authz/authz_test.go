package authz

import "testing"

func TestRosterIsAdmin(t *testing.T) {
	roster := Roster{
		{ActorID: "a@s.whatsapp.net", IsAdmin: true},
		{ActorID: "b@s.whatsapp.net", IsAdmin: false},
	}

	if !roster.IsAdmin("a@s.whatsapp.net") {
		t.Fatalf("IsAdmin(admin) = false")
	}
	if roster.IsAdmin("b@s.whatsapp.net") {
		t.Fatalf("IsAdmin(member) = true")
	}
	if roster.IsAdmin("c@s.whatsapp.net") {
		t.Fatalf("IsAdmin(stranger) = true")
	}
	if roster.IsAdmin("") {
		t.Fatalf("IsAdmin(empty) = true")
	}
	if (Roster)(nil).IsAdmin("a@s.whatsapp.net") {
		t.Fatalf("nil roster should fail closed")
	}
}

func TestRosterActorIDs(t *testing.T) {
	roster := Roster{{ActorID: "x"}, {ActorID: "y"}}
	ids := roster.ActorIDs()
	if len(ids) != 2 || ids[0] != "x" || ids[1] != "y" {
		t.Fatalf("ActorIDs() = %v", ids)
	}
}
