package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"telcoetl/normalize"
)

func rec(kv map[string]string) normalize.Record {
	r := make(normalize.Record, len(kv))
	for k, v := range kv {
		r[k] = normalize.String(v)
	}
	return r
}

func TestTicketOwnership_Precedence(t *testing.T) {
	chain := TicketOwnership("usuario", "grupo",
		[]string{"JPEREZ"}, []string{"GT MONITOREO"})

	// user allowlist wins even when the group says otherwise
	assert.Equal(t, "NOC", chain.Classify(rec(map[string]string{
		"usuario": "jperez", "grupo": "GT OPERACIONES ESTE",
	})))
	assert.Equal(t, "NOC", chain.Classify(rec(map[string]string{
		"usuario": "otro", "grupo": "gt monitoreo",
	})))
	assert.Equal(t, "NOC", chain.Classify(rec(map[string]string{
		"usuario": "otro", "grupo": "EQUIPO NOC CARACAS",
	})))
	assert.Equal(t, "OPERACIONES", chain.Classify(rec(map[string]string{
		"usuario": "otro", "grupo": "GT OPERACIONES ESTE",
	})))
	assert.Equal(t, "MESA DE CONTROL", chain.Classify(rec(map[string]string{
		"usuario": "otro", "grupo": "GT FACTURACION",
	})))
}

func TestCollectionsChannel(t *testing.T) {
	chain := CollectionsChannel("registrado_por")
	assert.Equal(t, "TELEVENTAS / CALL CENTER", chain.Classify(rec(map[string]string{"registrado_por": "call center web"})))
	assert.Equal(t, "OFICINA COMERCIAL", chain.Classify(rec(map[string]string{"registrado_por": "Asesor Valencia"})))
	assert.Equal(t, "ALIADOS", chain.Classify(rec(map[string]string{"registrado_por": "taquilla externa"})))
}

func TestSalesChannel_Precedence(t *testing.T) {
	chain := SalesChannel("agente", "vendedor",
		[]string{"MARIA LOPEZ"}, []string{"PEDRO SOSA"})

	// call center beats everything
	assert.Equal(t, "TELEVENTAS / CALL CENTER", chain.Classify(rec(map[string]string{
		"agente": "TELEVENTAS CARACAS", "vendedor": "MARIA LOPEZ",
	})))
	assert.Equal(t, "OFICINA COMERCIAL", chain.Classify(rec(map[string]string{
		"agente": "ALIADO X", "vendedor": "maria lopez",
	})))
	assert.Equal(t, "OFICINA COMERCIAL", chain.Classify(rec(map[string]string{
		"agente": "OFICINA VALENCIA", "vendedor": "otro",
	})))
	assert.Equal(t, "FUERZA DE VENTA PROPIA", chain.Classify(rec(map[string]string{
		"agente": "VENTAS CORPORATIVAS", "vendedor": "otro",
	})))
	assert.Equal(t, "FUERZA DE VENTA PROPIA", chain.Classify(rec(map[string]string{
		"agente": "ALIADO X", "vendedor": "PEDRO SOSA",
	})))
	assert.Equal(t, "ALIADOS", chain.Classify(rec(map[string]string{
		"agente": "AGENTE AUTORIZADO TROMP", "vendedor": "otro",
	})))
}

func TestChainApply(t *testing.T) {
	chain := CollectionsChannel("registrado_por")
	recs := []normalize.Record{
		rec(map[string]string{"registrado_por": "PHONE APP"}),
		rec(map[string]string{"registrado_por": "kiosco"}),
	}
	chain.Apply(recs, "canal")
	assert.Equal(t, "TELEVENTAS / CALL CENTER", recs[0]["canal"].Str())
	assert.Equal(t, "ALIADOS", recs[1]["canal"].Str())
}

func TestNonHumanFilter_WordBoundaries(t *testing.T) {
	f := NonHumanFilter("nombre", []string{"OFICINA", "OFI", "ROBOT", "INTERCOM"})

	kept, excluded := f.Split([]normalize.Record{
		rec(map[string]string{"nombre": "OFICINA BEJUMA VENTAS"}),
		rec(map[string]string{"nombre": "Robot Cobranzas"}),
		rec(map[string]string{"nombre": "JUAN OFICIALDEGUI"}), // substring only, kept
		rec(map[string]string{"nombre": "MARIA PEREZ"}),
	})
	assert.Len(t, excluded, 2)
	assert.Len(t, kept, 2)
	assert.Equal(t, "JUAN OFICIALDEGUI", kept[0]["nombre"].Str())
}

func TestTicketExclusions(t *testing.T) {
	f := TicketExclusions("solucion", "grupo", "detalle", "estatus",
		[]string{"PRUEBA TECNICA"})

	kept, excluded := f.Split([]normalize.Record{
		rec(map[string]string{"solucion": "prueba tecnica", "estatus": "CERRADA"}),
		rec(map[string]string{"grupo": "GT API MOVIL", "estatus": "CERRADA"}),
		rec(map[string]string{"detalle": "PRUEBA DE INTERNET", "estatus": "CERRADA"}),
		rec(map[string]string{"estatus": "EN CREACIÓN"}),
		rec(map[string]string{"estatus": "ANULADA"}),
		rec(map[string]string{"solucion": "AVERIA", "estatus": "CERRADA"}),
	})
	assert.Len(t, excluded, 5)
	assert.Len(t, kept, 1)
	assert.Equal(t, "AVERIA", kept[0]["solucion"].Str())
}
