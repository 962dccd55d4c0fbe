package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amishk599/jobsweep/internal/model"
)

func mustDefault(t *testing.T) *Taxonomy {
	t.Helper()
	tax, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	return tax
}

func TestDefault_Loads(t *testing.T) {
	tax := mustDefault(t)
	if tax.Version() == "" {
		t.Error("Version() is empty")
	}
	if len(tax.Locations()) == 0 {
		t.Error("no locations loaded")
	}
	if len(tax.Agencies()) == 0 {
		t.Error("no agencies loaded")
	}
}

func TestMapSkill(t *testing.T) {
	tax := mustDefault(t)

	tests := []struct {
		in     string
		want   model.Skill
		mapped bool
	}{
		{"Go", model.Skill{Name: "Go", Family: "programming_languages", Domain: "software_engineering"}, true},
		{"golang", model.Skill{Name: "Go", Family: "programming_languages", Domain: "software_engineering"}, true},
		{"  K8s ", model.Skill{Name: "Kubernetes", Family: "containers", Domain: "infrastructure"}, true},
		{"Apache Kafka", model.Skill{Name: "Kafka", Family: "streaming", Domain: "data"}, true},
		{"Underwater Basketry", model.Skill{Name: "Underwater Basketry"}, false},
	}

	for _, tt := range tests {
		got, ok := tax.MapSkill(tt.in)
		if got != tt.want || ok != tt.mapped {
			t.Errorf("MapSkill(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.mapped)
		}
	}
}

func TestMapSkills_DedupsAndReportsUnmapped(t *testing.T) {
	tax := mustDefault(t)

	skills, unmapped := tax.MapSkills([]string{"golang", "Go", "", "Fortran 77", "postgres"})
	if len(skills) != 3 {
		t.Fatalf("got %d skills, want 3: %+v", len(skills), skills)
	}
	if skills[0].Name != "Go" || skills[2].Name != "PostgreSQL" {
		t.Errorf("skills = %+v", skills)
	}
	if len(unmapped) != 1 || unmapped[0] != "Fortran 77" {
		t.Errorf("unmapped = %v, want [Fortran 77]", unmapped)
	}
}

func TestMapSkill_Deterministic(t *testing.T) {
	tax := mustDefault(t)
	first, _ := tax.MapSkill("pyspark")
	for i := 0; i < 50; i++ {
		if got, _ := tax.MapSkill("pyspark"); got != first {
			t.Fatalf("call %d returned %+v, want %+v", i, got, first)
		}
	}
}

func TestFamilyFor(t *testing.T) {
	tax := mustDefault(t)

	if fam, ok := tax.FamilyFor("data_engineering"); !ok || fam != "data" {
		t.Errorf("FamilyFor(data_engineering) = %q, %v; want data, true", fam, ok)
	}
	if fam, ok := tax.FamilyFor("basket_weaving"); ok || fam != "" {
		t.Errorf("FamilyFor(basket_weaving) = %q, %v; want empty, false", fam, ok)
	}
}

func TestFamilyFor_MixedCaseKeys(t *testing.T) {
	tax, err := Parse([]byte("version: x\nsubfamilies:\n  Data_Engineering: data\n  ' ML_Platform ': ml\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	for sub, want := range map[string]string{
		"data_engineering": "data",
		"DATA_ENGINEERING": "data",
		"ml_platform":      "ml",
	} {
		if fam, ok := tax.FamilyFor(sub); !ok || fam != want {
			t.Errorf("FamilyFor(%q) = %q, %v; want %q, true", sub, fam, ok, want)
		}
	}
	if got := tax.Subfamilies(); len(got) != 2 || got[0] != "data_engineering" || got[1] != "ml_platform" {
		t.Errorf("Subfamilies() = %v", got)
	}
}

func TestNormalizeArrangement(t *testing.T) {
	tests := []struct {
		value    string
		evidence string
		want     model.WorkingArrangement
	}{
		{"remote", "This is a fully remote role", model.ArrangementRemote},
		{"Hybrid", "3 days a week in our NYC office", model.ArrangementHybrid},
		{"on-site", "Onsite in Austin", model.ArrangementOnsite},
		{"remote", "Build pipelines with Spark", model.ArrangementUnknown},
		{"", "remote", model.ArrangementUnknown},
		{"flexible", "remote friendly", model.ArrangementUnknown},
	}

	for _, tt := range tests {
		if got := NormalizeArrangement(tt.value, tt.evidence); got != tt.want {
			t.Errorf("NormalizeArrangement(%q, %q) = %q, want %q", tt.value, tt.evidence, got, tt.want)
		}
	}
}

func TestEmployerDirectory(t *testing.T) {
	tax := mustDefault(t)

	if got := tax.CanonicalEmployer("Acme Corporation"); got != "Acme" {
		t.Errorf("CanonicalEmployer(Acme Corporation) = %q, want Acme", got)
	}
	if got := tax.CanonicalEmployer("Initech"); got != "Initech" {
		t.Errorf("CanonicalEmployer(Initech) = %q, want Initech", got)
	}
	e, ok := tax.LookupEmployer("acme labs, inc.")
	if !ok || e.Industry != "manufacturing" {
		t.Errorf("LookupEmployer = %+v, %v", e, ok)
	}
}

func TestCityFor(t *testing.T) {
	tax := mustDefault(t)

	tests := []struct{ in, want string }{
		{"NYC (Hybrid)", "new york"},
		{"Bay Area, California", "san francisco"},
		{"Denver, CO", "denver"},
		{"United States", "united states"},
	}
	for _, tt := range tests {
		if got := tax.CityFor(tt.in); got != tt.want {
			t.Errorf("CityFor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing version", "skills: []"},
		{"skill without family", "version: x\nskills:\n  - {name: Go, domain: d}"},
		{"conflicting alias", "version: x\nskills:\n  - {name: Go, aliases: [g], family: f, domain: d}\n  - {name: Gleam, aliases: [g], family: f, domain: d}"},
		{"bad pattern", "version: x\nlocations:\n  - {name: X, city: x, patterns: ['(']}"},
		{"location without patterns", "version: x\nlocations:\n  - {name: X, city: x}"},
		{"conflicting subfamily case", "version: x\nsubfamilies:\n  Data_Engineering: data\n  data_engineering: platform"},
		{"not yaml", "version: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tax.yaml")
	data := "version: custom-1\nsubfamilies:\n  quant_research: research\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	tax, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tax.Version() != "custom-1" {
		t.Errorf("Version() = %q, want custom-1", tax.Version())
	}
	if fam, ok := tax.FamilyFor("quant_research"); !ok || fam != "research" {
		t.Errorf("FamilyFor = %q, %v", fam, ok)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
