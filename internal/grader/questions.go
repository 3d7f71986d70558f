package grader

import (
	"github.com/pavelanni/codeboard/internal/model"
	"github.com/pavelanni/codeboard/internal/sandbox"
)

// Question categories, one per color group of the board.
const (
	CategoryVariables   = "Variables & Data Flow"
	CategoryControlFlow = "Logic & Control Flow"
	CategoryFunctions   = "Functions"
	CategoryCollections = "Lists & Dictionaries"
	CategoryCLI         = "Command-Line Tools"
	CategoryFiles       = "File I/O"
	CategoryAPIs        = "APIs & External Data"
)

func coding(id, title, category, prompt string, v Validator) Question {
	return Question{
		Info: model.QuestionInfo{
			ID:       id,
			Title:    title,
			Category: category,
			Kind:     model.KindCoding,
			Prompt:   prompt,
		},
		Validator: v,
	}
}

func multipleChoice(id, title, category, prompt, answer, success string, options ...string) Question {
	opts := make([]model.Option, len(options))
	for i, text := range options {
		opts[i] = model.Option{Letter: string(rune('A' + i)), Text: text}
	}
	return Question{
		Info: model.QuestionInfo{
			ID:       id,
			Title:    title,
			Category: category,
			Kind:     model.KindMultipleChoice,
			Prompt:   prompt,
			Options:  opts,
		},
		Validator: choice{id: id, answer: answer, success: success},
	}
}

// Questions returns the built-in question set in board order.
func Questions(r *sandbox.Runner) []Question {
	return []Question{
		coding("mediterranean_q1", "Store and print a float", CategoryVariables,
			"Store the number 7 as a float in a variable named x and print it. The output should be 7.0.",
			mediterranean(r)),
		coding("baltic_q1", "Format a string with a variable", CategoryVariables,
			"A variable name holds a person's name. Print \"Hello, \" followed by the name, for example Hello, Alice.",
			baltic(r)),
		multipleChoice("reading_railroad_q1", "Reading Railroad", CategoryVariables,
			"What is a variable in Python?", "B",
			"Correct! A variable is a named reference that points to a value in memory.",
			"A fixed value that can never change",
			"A named reference that points to a value in memory",
			"A function that stores data on disk",
			"A special keyword reserved by Python"),
		coding("oriental_q1", "Conditional expression", CategoryControlFlow,
			"A variable age holds a number. Using a conditional expression, print adult if age is 18 or more and minor otherwise.",
			oriental(r)),
		coding("vermont_q1", "Boolean expression in a range", CategoryControlFlow,
			"Set is_valid to True when x is between 1 and 10 (inclusive) and False otherwise, then print it.",
			vermont(r)),
		coding("connecticut_q1", "Loop over a list", CategoryControlFlow,
			"A list nums holds numbers. Use a for loop to print each number on its own line.",
			connecticut(r)),
		multipleChoice("pennsylvania_railroad_q1", "Pennsylvania Railroad", CategoryControlFlow,
			"What does an if/elif/else statement do?", "C",
			"Correct! Conditional statements choose between different paths of execution.",
			"Repeats a block of code a fixed number of times",
			"Defines a reusable block of code",
			"Chooses between different paths of execution",
			"Stops the program when an error occurs"),
		coding("st_charles_q1", "Define a square function", CategoryFunctions,
			"Define a function square(n) that returns n squared.",
			stCharles(r)),
		coding("states_q1", "Call a function and store the result", CategoryFunctions,
			"A function greet(name) is already defined. Call it with \"Alex\" and store the result in a variable named message.",
			states(r)),
		coding("virginia_q1", "Function with a default argument", CategoryFunctions,
			"Define a function add(a, b=10) that returns the sum of a and b.",
			virginia(r)),
		multipleChoice("bo_railroad_q1", "B. & O. Railroad", CategoryFunctions,
			"Why do we write functions?", "B",
			"Correct! Functions organize reusable blocks of logic.",
			"To make programs run faster",
			"To organize reusable blocks of logic",
			"To store values permanently",
			"To import external libraries"),
		coding("st_james_q1", "Create a list of even numbers", CategoryCollections,
			"Create a list named evens containing all even numbers from 0 to 10 (inclusive).",
			stJames(r)),
		coding("tennessee_q1", "Add a key to a dictionary", CategoryCollections,
			"A dictionary student already exists. Add the key \"grade\" with the value 95 to it.",
			tennessee(r)),
		coding("new_york_q1", "Get a value from a dictionary", CategoryCollections,
			"A dictionary student has a key \"name\". Store its value in a variable named student_name.",
			newYork(r)),
		multipleChoice("short_line_q1", "Short Line", CategoryCollections,
			"What is a dictionary in Python?", "C",
			"Correct! A dictionary is a structure that maps keys to values.",
			"An ordered list of numbers",
			"A text file with definitions",
			"A structure that maps keys to values",
			"A function that sorts words"),
		coding("kentucky_q1", "Create an ArgumentParser", CategoryCLI,
			"Create an ArgumentParser named parser with the description \"Demo script\".",
			kentucky(r)),
		coding("indiana_q1", "Add a filename argument", CategoryCLI,
			"An ArgumentParser named parser exists. Add a required string argument called filename.",
			indiana(r)),
		coding("illinois_q1", "Parse command-line arguments", CategoryCLI,
			"An ArgumentParser named parser exists. Parse the command-line arguments and store the result in a variable named args.",
			illinois(r)),
		coding("atlantic_q1", "Open a file with a with-statement", CategoryFiles,
			"Open data.txt for reading using a with statement and bind it to a variable named f.",
			atlantic(r)),
		coding("ventnor_q1", "Read a whole file into a string", CategoryFiles,
			"Read the entire contents of data.txt into a variable named text.",
			ventnor(r)),
		coding("marvin_gardens_q1", "Append a line to a log file", CategoryFiles,
			"Append the line \"done\" (followed by a newline) to the file log.txt.",
			marvinGardens(r)),
		multipleChoice("electric_company_q1", "Electric Company", CategoryFiles,
			"Why is the with statement recommended for working with files?", "B",
			"Correct! The with statement ensures the file closes properly even if an error occurs.",
			"It makes reading files faster",
			"It ensures the file closes properly even if an error occurs",
			"It encrypts the file contents",
			"It is the only way to open a file"),
		coding("pacific_q1", "Send a GET request", CategoryAPIs,
			"Using the requests library, send a GET request to "+pacificURL+" and store the response in a variable named response.",
			pacific(r)),
		coding("north_carolina_q1", "Parse JSON from a response", CategoryAPIs,
			"A response object named response exists. Extract its JSON data and store it in a variable named data.",
			northCarolina(r)),
		coding("pennsylvania_q1", "Check the response status code", CategoryAPIs,
			"A response object named response exists. Store its status code in a variable named status_code.",
			pennsylvania(r)),
		coding("park_place_q1", "Get the response text", CategoryAPIs,
			"A response object named response exists. Store its text content in a variable named content.",
			parkPlace(r)),
		coding("boardwalk_q1", "Send a POST request with data", CategoryAPIs,
			"Using the requests library, send a POST request to "+boardwalkURL+" with the JSON data {\"name\": \"Alex\", \"score\": 95} and store the response in a variable named response.",
			boardwalk(r)),
		multipleChoice("water_works_q1", "Water Works", CategoryAPIs,
			"What is the role of an API?", "B",
			"Correct! An API connects a Python script to external data or services.",
			"It stores Python code in the cloud",
			"It connects a Python script to external data or services",
			"It compiles Python into machine code",
			"It formats output for the terminal"),
	}
}
