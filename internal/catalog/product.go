// Package catalog defines the product record that the edit workflow works
// on. The canonical copy belongs to the catalog store; editing happens on
// the generic fieldpath.Record form produced by ToRecord.
package catalog

import (
	"encoding/json"
	"fmt"

	"modelcards/api/internal/fieldpath"
)

type Product struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	Company              string                `json:"company"`
	CompanyURL           string                `json:"companyUrl,omitempty"`
	ProductURL           string                `json:"productUrl,omitempty"`
	GithubURL            string                `json:"githubUrl,omitempty"`
	Description          string                `json:"description,omitempty"`
	Category             string                `json:"category,omitempty"`
	SecondaryCategories  []string              `json:"secondaryCategories,omitempty"`
	Certification        string                `json:"certification,omitempty"`
	LogoURL              string                `json:"logoUrl,omitempty"`
	Website              string                `json:"website,omitempty"`
	AnatomicalLocation   []string              `json:"anatomicalLocation,omitempty"`
	Modality             []string              `json:"modality,omitempty"`
	Subspeciality        string                `json:"subspeciality,omitempty"`
	DiseaseTargeted      []string              `json:"diseaseTargeted,omitempty"`
	KeyFeatures          []string              `json:"keyFeatures,omitempty"`
	SupportedStructures  []Structure           `json:"supportedStructures,omitempty"`
	Technology           *Technology           `json:"technology,omitempty"`
	Regulatory           *Regulatory           `json:"regulatory,omitempty"`
	Market               *Market               `json:"market,omitempty"`
	Evidence             []Evidence            `json:"evidence,omitempty"`
	Guidelines           []Guideline           `json:"guidelines,omitempty"`
	Limitations          []string              `json:"limitations,omitempty"`
	IntegratedModules    []IntegratedModule    `json:"integratedModules,omitempty"`
	DosePredictionModels []DosePredictionModel `json:"dosePredictionModels,omitempty"`
	PartOf               *PartOf               `json:"partOf,omitempty"`
	UsesAI               *bool                 `json:"usesAI,omitempty"`
	ReleaseDate          string                `json:"releaseDate,omitempty"`
	Version              string                `json:"version,omitempty"`
	LastUpdated          string                `json:"lastUpdated,omitempty"`
	LastRevised          string                `json:"lastRevised,omitempty"`
	Source               string                `json:"source,omitempty"`
}

// Structure is one contourable structure a segmentation product supports.
type Structure struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"` // OAR, GTV or Elective
	Model string `json:"model,omitempty"`
}

type Technology struct {
	Integration        []string `json:"integration,omitempty"`
	Deployment         []string `json:"deployment,omitempty"`
	TriggerForAnalysis string   `json:"triggerForAnalysis,omitempty"`
	ProcessingTime     string   `json:"processingTime,omitempty"`
}

type Regulatory struct {
	CE                   *CEMark       `json:"ce,omitempty"`
	FDA                  *FDAClearance `json:"fda,omitempty"`
	TGA                  *TGAListing   `json:"tga,omitempty"`
	IntendedUseStatement string        `json:"intendedUseStatement,omitempty"`
}

type CEMark struct {
	Status           string `json:"status,omitempty"`
	Class            string `json:"class,omitempty"`
	Type             string `json:"type,omitempty"`
	RegulationNumber string `json:"regulationNumber,omitempty"`
}

type FDAClearance struct {
	Status           string `json:"status,omitempty"`
	Class            string `json:"class,omitempty"`
	Type             string `json:"type,omitempty"`
	ClearanceNumber  string `json:"clearanceNumber,omitempty"`
	ProductCode      string `json:"productCode,omitempty"`
	RegulationNumber string `json:"regulationNumber,omitempty"`
	DecisionDate     string `json:"decisionDate,omitempty"`
}

type TGAListing struct {
	Status string `json:"status,omitempty"`
	ARTG   string `json:"artg,omitempty"`
}

type Market struct {
	OnMarketSince        string   `json:"onMarketSince,omitempty"`
	DistributionChannels []string `json:"distributionChannels,omitempty"`
	CountriesPresent     int      `json:"countriesPresent,omitempty"`
}

type Guideline struct {
	Name       string `json:"name"`
	Version    string `json:"version,omitempty"`
	Reference  string `json:"reference,omitempty"`
	URL        string `json:"url,omitempty"`
	Compliance string `json:"compliance,omitempty"`
}

type IntegratedModule struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ProductID   string `json:"productId,omitempty"`
}

type DosePredictionModel struct {
	Name           string   `json:"name"`
	AnatomicalSite string   `json:"anatomicalSite,omitempty"`
	Modality       []string `json:"modality,omitempty"`
	Technique      string   `json:"technique,omitempty"`
	Status         string   `json:"status,omitempty"`
}

// PartOf points at the parent product a module ships within.
type PartOf struct {
	ProductID    string `json:"productId"`
	Name         string `json:"name,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// ToRecord converts a product into its editable generic form.
func ToRecord(p Product) (fieldpath.Record, error) {
	rec, err := fieldpath.NormalizeRecord(p)
	if err != nil {
		return nil, fmt.Errorf("product %s to record: %w", p.ID, err)
	}
	return rec, nil
}

// FromRecord decodes a generic record back into a product. Legacy evidence
// strings are normalized on the way in.
func FromRecord(rec fieldpath.Record) (Product, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return Product{}, fmt.Errorf("encode record: %w", err)
	}
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return Product{}, fmt.Errorf("decode product: %w", err)
	}
	for i := range p.Evidence {
		p.Evidence[i] = p.Evidence[i].Normalize()
	}
	return p, nil
}

// Name returns the product name stored in rec, or its id.
func Name(rec fieldpath.Record) string {
	if name, ok := rec["name"].(string); ok && name != "" {
		return name
	}
	id, _ := rec["id"].(string)
	return id
}
