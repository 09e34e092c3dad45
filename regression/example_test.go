package regression_test

import (
	"fmt"
	"log"
	"math"

	"github.com/arloliu/visco/regression"
)

// ExampleFitArrhenius fits the temperature baseline on noiseless data.
func ExampleFitArrhenius() {
	temps := []float64{20, 30, 40, 50, 60}
	visc := make([]float64, len(temps))
	for i, c := range temps {
		visc[i] = math.Exp(-11.4 + 8000*regression.InverseTemperature(c))
	}

	base, err := regression.FitArrhenius(temps, visc, 0)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(base.Formula())
	fmt.Printf("viscosity at 25°C: %.0f\n", math.Exp(base.LnViscosity(25)))

	// Output:
	// ln(visc) = -11.4000 + 8000.00 / T_K
	// viscosity at 25°C: 5036044
}
