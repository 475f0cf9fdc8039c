package vocab

import "github.com/ppiankov/trialmatch/internal/model"

// Term vocabulary. Field is the default field for a bare mention; the parser
// moves conditions to history when preceded by "history of" or "prior".
var termEntries = []Entry{
	// Conditions
	{Canonical: "type 2 diabetes", Field: model.FieldCondition, Synonyms: []string{
		"type 2 diabetes mellitus", "type 2 diabetes", "type ii diabetes mellitus", "type ii diabetes",
		"t2dm", "t2d", "non-insulin-dependent diabetes"}},
	{Canonical: "type 1 diabetes", Field: model.FieldCondition, Synonyms: []string{
		"type 1 diabetes mellitus", "type 1 diabetes", "type i diabetes", "t1dm", "insulin-dependent diabetes"}},
	{Canonical: "diabetes", Field: model.FieldCondition, Synonyms: []string{"diabetes mellitus", "diabetes", "diabetic"}},
	{Canonical: "hypertension", Field: model.FieldCondition, Synonyms: []string{
		"uncontrolled hypertension", "hypertension", "high blood pressure", "htn"}},
	{Canonical: "heart failure", Field: model.FieldCondition, Synonyms: []string{
		"congestive heart failure", "heart failure", "chf"}},
	{Canonical: "chronic kidney disease", Field: model.FieldCondition, Synonyms: []string{
		"chronic kidney disease", "ckd", "renal insufficiency", "renal impairment", "renal failure"}},
	{Canonical: "liver disease", Field: model.FieldCondition, Synonyms: []string{
		"liver disease", "hepatic impairment", "hepatic insufficiency"}},
	{Canonical: "cirrhosis", Field: model.FieldCondition, Synonyms: []string{"liver cirrhosis", "cirrhosis"}},
	{Canonical: "asthma", Field: model.FieldCondition, Synonyms: []string{"asthma"}},
	{Canonical: "copd", Field: model.FieldCondition, Synonyms: []string{"chronic obstructive pulmonary disease", "copd"}},
	{Canonical: "cancer", Field: model.FieldCondition, Synonyms: []string{
		"malignancy", "malignancies", "cancer", "carcinoma", "neoplasm"}},
	{Canonical: "breast cancer", Field: model.FieldCondition, Synonyms: []string{"breast cancer", "breast carcinoma"}},
	{Canonical: "lung cancer", Field: model.FieldCondition, Synonyms: []string{
		"non-small cell lung cancer", "nsclc", "small cell lung cancer", "lung cancer"}},
	{Canonical: "prostate cancer", Field: model.FieldCondition, Synonyms: []string{"prostate cancer", "prostate carcinoma"}},
	{Canonical: "hiv", Field: model.FieldCondition, Synonyms: []string{"human immunodeficiency virus", "hiv"}},
	{Canonical: "hepatitis b", Field: model.FieldCondition, Synonyms: []string{"hepatitis b", "hbv"}},
	{Canonical: "hepatitis c", Field: model.FieldCondition, Synonyms: []string{"hepatitis c", "hcv"}},
	{Canonical: "tuberculosis", Field: model.FieldCondition, Synonyms: []string{"tuberculosis"}},
	{Canonical: "epilepsy", Field: model.FieldCondition, Synonyms: []string{"epilepsy", "seizure disorder"}},
	{Canonical: "depression", Field: model.FieldCondition, Synonyms: []string{"major depressive disorder", "depression"}},
	{Canonical: "dementia", Field: model.FieldCondition, Synonyms: []string{"dementia"}},
	{Canonical: "alzheimer's disease", Field: model.FieldCondition, Synonyms: []string{
		"alzheimer's disease", "alzheimer disease", "alzheimers"}},
	{Canonical: "rheumatoid arthritis", Field: model.FieldCondition, Synonyms: []string{"rheumatoid arthritis"}},
	{Canonical: "psoriasis", Field: model.FieldCondition, Synonyms: []string{"psoriasis"}},
	{Canonical: "obesity", Field: model.FieldCondition, Synonyms: []string{"obesity", "obese"}},
	{Canonical: "atrial fibrillation", Field: model.FieldCondition, Synonyms: []string{"atrial fibrillation", "afib"}},
	{Canonical: "active infection", Field: model.FieldCondition, Synonyms: []string{
		"active infection", "uncontrolled infection", "systemic infection"}},
	{Canonical: "autoimmune disease", Field: model.FieldCondition, Synonyms: []string{"autoimmune disease", "autoimmune disorder"}},
	{Canonical: "covid-19", Field: model.FieldCondition, Synonyms: []string{"covid-19", "sars-cov-2"}},
	{Canonical: "anemia", Field: model.FieldCondition, Synonyms: []string{"anemia", "anaemia"}},

	// History
	{Canonical: "pregnancy", Field: model.FieldHistory, Synonyms: []string{"pregnancy", "pregnant"}},
	{Canonical: "breastfeeding", Field: model.FieldHistory, Synonyms: []string{
		"breastfeeding", "breast-feeding", "lactating", "lactation"}},
	{Canonical: "myocardial infarction", Field: model.FieldHistory, Synonyms: []string{"myocardial infarction", "heart attack"}},
	{Canonical: "stroke", Field: model.FieldHistory, Synonyms: []string{"stroke", "cerebrovascular accident"}},
	{Canonical: "transient ischemic attack", Field: model.FieldHistory, Synonyms: []string{"transient ischemic attack", "tia"}},
	{Canonical: "substance abuse", Field: model.FieldHistory, Synonyms: []string{
		"substance abuse", "drug abuse", "alcohol abuse", "substance use disorder", "alcoholism"}},
	{Canonical: "suicidal ideation", Field: model.FieldHistory, Synonyms: []string{"suicidal ideation", "suicide attempt"}},
	{Canonical: "hypersensitivity", Field: model.FieldHistory, Synonyms: []string{
		"hypersensitivity", "allergy", "allergic reaction"}},

	// Medications
	{Canonical: "warfarin", Field: model.FieldMedication, Synonyms: []string{"warfarin", "coumadin"}},
	{Canonical: "insulin", Field: model.FieldMedication, Synonyms: []string{"insulin"}},
	{Canonical: "metformin", Field: model.FieldMedication, Synonyms: []string{"metformin"}},
	{Canonical: "aspirin", Field: model.FieldMedication, Synonyms: []string{"aspirin"}},
	{Canonical: "anticoagulants", Field: model.FieldMedication, Synonyms: []string{
		"anticoagulants", "anticoagulant", "anticoagulation", "blood thinners"}},
	{Canonical: "corticosteroids", Field: model.FieldMedication, Synonyms: []string{
		"systemic corticosteroids", "corticosteroids", "corticosteroid", "steroids", "prednisone"}},
	{Canonical: "statins", Field: model.FieldMedication, Synonyms: []string{"statins", "statin"}},
	{Canonical: "immunosuppressants", Field: model.FieldMedication, Synonyms: []string{
		"immunosuppressive therapy", "immunosuppressive agents", "immunosuppressants"}},
	{Canonical: "investigational drug", Field: model.FieldMedication, Synonyms: []string{
		"investigational drug", "investigational agent", "investigational product", "investigational medicinal product"}},
	{Canonical: "sglt2 inhibitors", Field: model.FieldMedication, Synonyms: []string{
		"sglt2 inhibitors", "sglt2 inhibitor", "sglt-2 inhibitors", "sglt-2 inhibitor"}},
	{Canonical: "glp-1 receptor agonists", Field: model.FieldMedication, Synonyms: []string{
		"glp-1 receptor agonists", "glp-1 receptor agonist", "glp-1 ra"}},
	{Canonical: "opioids", Field: model.FieldMedication, Synonyms: []string{"opioids", "opioid"}},
	{Canonical: "antibiotics", Field: model.FieldMedication, Synonyms: []string{"antibiotics", "antibiotic"}},
	{Canonical: "hormone therapy", Field: model.FieldMedication, Synonyms: []string{
		"hormone replacement therapy", "hormone therapy", "hormonal therapy"}},

	// Procedures
	{Canonical: "surgery", Field: model.FieldProcedure, Synonyms: []string{"major surgery", "surgery", "surgical procedure"}},
	{Canonical: "chemotherapy", Field: model.FieldProcedure, Synonyms: []string{"chemotherapy"}},
	{Canonical: "radiotherapy", Field: model.FieldProcedure, Synonyms: []string{"radiotherapy", "radiation therapy"}},
	{Canonical: "immunotherapy", Field: model.FieldProcedure, Synonyms: []string{"immunotherapy"}},
	{Canonical: "dialysis", Field: model.FieldProcedure, Synonyms: []string{"hemodialysis", "dialysis"}},
	{Canonical: "organ transplant", Field: model.FieldProcedure, Synonyms: []string{
		"solid organ transplant", "organ transplantation", "organ transplant"}},
	{Canonical: "stem cell transplant", Field: model.FieldProcedure, Synonyms: []string{
		"stem cell transplant", "bone marrow transplant"}},
	{Canonical: "bariatric surgery", Field: model.FieldProcedure, Synonyms: []string{"bariatric surgery"}},
	{Canonical: "percutaneous coronary intervention", Field: model.FieldProcedure, Synonyms: []string{
		"percutaneous coronary intervention", "pci"}},
	{Canonical: "coronary artery bypass graft", Field: model.FieldProcedure, Synonyms: []string{
		"coronary artery bypass graft", "cabg"}},
	{Canonical: "blood transfusion", Field: model.FieldProcedure, Synonyms: []string{"blood transfusion", "transfusion"}},
	{Canonical: "vaccination", Field: model.FieldProcedure, Synonyms: []string{"vaccination", "vaccine"}},
}

// Lab analytes. Canonical names are what rules carry in Subject.
var labEntries = []Entry{
	{Canonical: "hba1c", Field: model.FieldLab, Synonyms: []string{
		"hemoglobin a1c", "haemoglobin a1c", "glycated hemoglobin", "glycosylated hemoglobin", "hba1c", "hb a1c", "a1c"}},
	{Canonical: "hemoglobin", Field: model.FieldLab, Synonyms: []string{"hemoglobin", "haemoglobin", "hgb"}},
	{Canonical: "creatinine clearance", Field: model.FieldLab, Synonyms: []string{"creatinine clearance", "crcl"}},
	{Canonical: "creatinine", Field: model.FieldLab, Synonyms: []string{"serum creatinine", "creatinine"}},
	{Canonical: "egfr", Field: model.FieldLab, Synonyms: []string{
		"estimated glomerular filtration rate", "glomerular filtration rate", "egfr", "gfr"}},
	{Canonical: "alt", Field: model.FieldLab, Synonyms: []string{"alanine aminotransferase", "alanine transaminase", "alt", "sgpt"}},
	{Canonical: "ast", Field: model.FieldLab, Synonyms: []string{"aspartate aminotransferase", "aspartate transaminase", "ast", "sgot"}},
	{Canonical: "bilirubin", Field: model.FieldLab, Synonyms: []string{"total bilirubin", "bilirubin"}},
	{Canonical: "platelets", Field: model.FieldLab, Synonyms: []string{"platelet count", "platelets"}},
	{Canonical: "anc", Field: model.FieldLab, Synonyms: []string{"absolute neutrophil count", "anc"}},
	{Canonical: "wbc", Field: model.FieldLab, Synonyms: []string{"white blood cell count", "wbc"}},
	{Canonical: "lvef", Field: model.FieldLab, Synonyms: []string{"left ventricular ejection fraction", "ejection fraction", "lvef"}},
	{Canonical: "inr", Field: model.FieldLab, Synonyms: []string{"international normalized ratio", "inr"}},
	{Canonical: "bmi", Field: model.FieldLab, Synonyms: []string{"body mass index", "bmi"}},
	{Canonical: "potassium", Field: model.FieldLab, Synonyms: []string{"serum potassium", "potassium"}},
	{Canonical: "sodium", Field: model.FieldLab, Synonyms: []string{"serum sodium", "sodium"}},
	{Canonical: "glucose", Field: model.FieldLab, Synonyms: []string{"fasting plasma glucose", "fasting glucose", "glucose"}},
	{Canonical: "ldl cholesterol", Field: model.FieldLab, Synonyms: []string{"ldl cholesterol", "ldl-c", "ldl"}},
	{Canonical: "tsh", Field: model.FieldLab, Synonyms: []string{"thyroid stimulating hormone", "tsh"}},
	{Canonical: "psa", Field: model.FieldLab, Synonyms: []string{"prostate-specific antigen", "prostate specific antigen", "psa"}},
	{Canonical: "albumin", Field: model.FieldLab, Synonyms: []string{"serum albumin", "albumin"}},
	{Canonical: "ecog", Field: model.FieldLab, Synonyms: []string{"ecog performance status", "ecog ps", "ecog"}},
	{Canonical: "systolic blood pressure", Field: model.FieldLab, Synonyms: []string{"systolic blood pressure", "sbp"}},
}
