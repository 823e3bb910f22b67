// Package config reads the YAML coupling configuration shared by both
// participants of a coupled run.
package config

import (
	"fmt"

	"github.com/ghodss/yaml"

	"github.com/coupledsim/gocpl/partition"
)

// Parameters obtained from the YAML configuration file. ghodss/yaml
// resolves fields through the JSON unmarshaler, so the keys are bound with
// json tags.
type CouplingConfig struct {
	Title           string       `json:"Title"`
	Acceptor        string       `json:"Acceptor"`
	Requester       string       `json:"Requester"`
	Meshes          []MeshConfig `json:"Meshes"`
	Data            []DataConfig `json:"Data"`
	Exchanges       []string     `json:"Exchanges"` // Data names exchanged each window, in order
	SafetyFactor    float64      `json:"SafetyFactor"`
	GeometricFilter string       `json:"GeometricFilter"`
}

type MeshConfig struct {
	Name        string `json:"Name"`
	Dimensions  int    `json:"Dimensions"`
	FlipNormals bool   `json:"FlipNormals"`
}

type DataConfig struct {
	Name       string `json:"Name"`
	Dimension  int    `json:"Dimension"`
	Initialize bool   `json:"Initialize"`
}

func (cc *CouplingConfig) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, cc); err != nil {
		return err
	}
	return cc.Validate()
}

// Filter resolves the configured filter name. Validate has already checked
// it, so a failure here is a programming error.
func (cc *CouplingConfig) Filter() partition.GeometricFilter {
	filter, err := partition.ParseGeometricFilter(cc.GeometricFilter)
	if err != nil {
		panic(err)
	}
	return filter
}

func (cc *CouplingConfig) Validate() error {
	if len(cc.Acceptor) == 0 || len(cc.Requester) == 0 {
		return fmt.Errorf("both participant names must be set")
	}
	if cc.Acceptor == cc.Requester {
		return fmt.Errorf("participants must have distinct names, both are %q", cc.Acceptor)
	}
	if _, err := partition.ParseGeometricFilter(cc.GeometricFilter); err != nil {
		return err
	}
	if cc.SafetyFactor < 0 {
		return fmt.Errorf("safety factor must not be negative, have %g", cc.SafetyFactor)
	}
	if len(cc.Meshes) == 0 {
		return fmt.Errorf("at least one mesh must be configured")
	}
	meshNames := make(map[string]bool, len(cc.Meshes))
	for _, mc := range cc.Meshes {
		if len(mc.Name) == 0 {
			return fmt.Errorf("every mesh needs a name")
		}
		if meshNames[mc.Name] {
			return fmt.Errorf("duplicate mesh name %q", mc.Name)
		}
		meshNames[mc.Name] = true
		if mc.Dimensions != 2 && mc.Dimensions != 3 {
			return fmt.Errorf("mesh %q: dimensions must be 2 or 3, have %d", mc.Name, mc.Dimensions)
		}
	}
	dataNames := make(map[string]bool, len(cc.Data))
	for _, dc := range cc.Data {
		if len(dc.Name) == 0 {
			return fmt.Errorf("every data field needs a name")
		}
		if dataNames[dc.Name] {
			return fmt.Errorf("duplicate data name %q", dc.Name)
		}
		dataNames[dc.Name] = true
		if dc.Dimension < 1 {
			return fmt.Errorf("data %q: dimension must be positive, have %d", dc.Name, dc.Dimension)
		}
	}
	for _, name := range cc.Exchanges {
		if !dataNames[name] {
			return fmt.Errorf("exchange references unknown data %q", name)
		}
	}
	return nil
}

func (cc *CouplingConfig) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", cc.Title)
	fmt.Printf("[%s]\t\t= Acceptor\n", cc.Acceptor)
	fmt.Printf("[%s]\t\t= Requester\n", cc.Requester)
	fmt.Printf("[%s]\t= Geometric Filter\n", cc.GeometricFilter)
	fmt.Printf("%8.5f\t\t= Safety Factor\n", cc.SafetyFactor)
	for _, mc := range cc.Meshes {
		fmt.Printf("Mesh[%s] = %d-D, flip normals: %v\n", mc.Name, mc.Dimensions, mc.FlipNormals)
	}
	for _, dc := range cc.Data {
		fmt.Printf("Data[%s] = dimension %d, initialize: %v\n", dc.Name, dc.Dimension, dc.Initialize)
	}
	fmt.Printf("%v\t= Exchanges\n", cc.Exchanges)
}
