package catalog

import (
	"testing"

	"inproc/internal/domain"
)

func TestInitialActiveDefaults(t *testing.T) {
	req := domain.Request{EmpType: domain.EmpCivilian, IsNewCivMil: "yes"}
	welcome, _ := Lookup(WelcomePackage)
	if !InitialActive(welcome, req) {
		t.Fatal("template without prereqs should start active")
	}
	gtc, _ := Lookup(GTC)
	if InitialActive(gtc, req) {
		t.Fatal("template with prereqs should start inactive")
	}
}

func TestInitialActiveObtainCACOverride(t *testing.T) {
	tpl, _ := Lookup(ObtainCACGov)
	newHire := domain.Request{EmpType: domain.EmpCivilian, IsNewCivMil: "yes"}
	if InitialActive(tpl, newHire) {
		t.Fatal("brand new civ/mil must wait for installation in-processing")
	}
	transfer := domain.Request{EmpType: domain.EmpCivilian, IsNewCivMil: "no"}
	if !InitialActive(tpl, transfer) {
		t.Fatal("transferring civ/mil already has a CAC, item should start active")
	}
}
